package page

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hupe1980/linkdb/internal/fs"
)

// BlockFileName returns the block file name of page id.
func BlockFileName(id int) string {
	return fmt.Sprintf("page-%06d.blk", id)
}

// DirectoryFileName returns the directory file name of page id.
func DirectoryFileName(id int) string {
	return fmt.Sprintf("page-%06d.dir", id)
}

// Page is a fixed-capacity directory of slots holding *T, backed by a
// BlockStore. The slot table is guarded by a read/write mutex; block IO goes
// straight to the store.
type Page[T any] struct {
	id       int
	capacity int
	dir      string
	store    *BlockStore

	mu    sync.RWMutex
	slots []*T
	used  int
}

// Open opens (creating if needed) the block file of page id in dir.
func Open[T any](fsys fs.FileSystem, dir string, id, capacity, blockSize int, cache *BlockCache) (*Page[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("page: invalid capacity %d", capacity)
	}

	store, err := OpenBlockStore(fsys, filepath.Join(dir, BlockFileName(id)), id, blockSize, cache)
	if err != nil {
		return nil, err
	}

	return &Page[T]{
		id:       id,
		capacity: capacity,
		dir:      dir,
		store:    store,
		slots:    make([]*T, capacity),
	}, nil
}

// ID returns the page index.
func (p *Page[T]) ID() int { return p.id }

// Capacity returns the number of slots.
func (p *Page[T]) Capacity() int { return p.capacity }

// Store returns the backing block store.
func (p *Page[T]) Store() *BlockStore { return p.store }

// DirectoryPath returns the path of the page directory file.
func (p *Page[T]) DirectoryPath() string {
	return filepath.Join(p.dir, DirectoryFileName(p.id))
}

// Len returns the number of occupied slots.
func (p *Page[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.used
}

// LinkByIndex returns the value in slot index, or nil.
func (p *Page[T]) LinkByIndex(index int) *T {
	if index < 0 || index >= p.capacity {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slots[index]
}

// SetLinkByIndex stores v in the empty slot index.
func (p *Page[T]) SetLinkByIndex(index int, v *T) error {
	if index < 0 || index >= p.capacity {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots[index] != nil {
		return fmt.Errorf("%w: page %d slot %d", ErrSlotInUse, p.id, index)
	}
	p.slots[index] = v
	p.used++
	return nil
}

// RemoveLinkByIndex releases blocks and clears slot index.
func (p *Page[T]) RemoveLinkByIndex(blocks []uint32, index int) {
	p.store.Release(blocks)

	if index < 0 || index >= p.capacity {
		return
	}

	p.mu.Lock()
	if p.slots[index] != nil {
		p.slots[index] = nil
		p.used--
	}
	p.mu.Unlock()
}

// Used reports whether slot index is occupied.
func (p *Page[T]) Used(index int) bool {
	return p.LinkByIndex(index) != nil
}

// All returns the occupied slots in index order.
func (p *Page[T]) All() []*T {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*T, 0, p.used)
	for _, v := range p.slots {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Clear drops every slot without touching disk.
func (p *Page[T]) Clear() {
	p.mu.Lock()
	clear(p.slots)
	p.used = 0
	p.mu.Unlock()
}

// Close clears the page and closes its block file.
func (p *Page[T]) Close() error {
	p.Clear()
	return p.store.Close()
}
