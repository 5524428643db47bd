package linkdb

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/linkdb/internal/page"
)

// Link is the handle of one stored item. Its gid and page never change; the
// item behind it moves between loaded (in memory) and unloaded (bytes in the
// page's blocks) under the database's eviction policy.
//
// A Link is safe for concurrent use. Operations on one link are serialized;
// operations on different links run in parallel.
type Link struct {
	db   *DB
	gid  int64
	page *page.Page[Link]

	// Guarded by the link's section in the coordinator (or maintenance).
	item       Item
	blocks     []uint32
	diskLength int64
	length     int64

	// Graph edges; the child set is mutated by other links' sections.
	mu       sync.Mutex
	parent   int64
	children map[int64]struct{}

	// Residency state, guarded by db.res.mu.
	prev, next *Link
	inList     bool
	resident   bool
	charged    int64

	accessed atomic.Bool
	frozen   atomic.Bool
	removed  atomic.Bool
}

func newLink(db *DB, gid int64, p *page.Page[Link], parent int64) *Link {
	return &Link{
		db:       db,
		gid:      gid,
		page:     p,
		parent:   parent,
		children: make(map[int64]struct{}),
	}
}

// GID returns the global identifier.
func (l *Link) GID() int64 { return l.gid }

// PageID returns the index of the owning page.
func (l *Link) PageID() int { return l.page.ID() }

// Slot returns the index within the owning page.
func (l *Link) Slot() int { return int(l.gid % int64(l.page.Capacity())) }

// DB returns the owning database.
func (l *Link) DB() *DB { return l.db }

// Parent returns the parent link, or nil for the root.
func (l *Link) Parent() *Link {
	l.mu.Lock()
	parent := l.parent
	l.mu.Unlock()

	if parent < 0 {
		return nil
	}
	return l.db.LinkByGID(parent)
}

// Children returns the gids of the child links in ascending order.
func (l *Link) Children() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int64, 0, len(l.children))
	for gid := range l.children {
		out = append(out, gid)
	}
	slices.Sort(out)
	return out
}

// IsLoaded reports whether the item is in memory.
func (l *Link) IsLoaded() bool {
	l.db.res.mu.Lock()
	defer l.db.res.mu.Unlock()
	return l.resident
}

// IsRemoved reports whether the link was removed.
func (l *Link) IsRemoved() bool { return l.removed.Load() }

// Freeze pins the link against eviction.
func (l *Link) Freeze() { l.frozen.Store(true) }

// Unfreeze makes the link evictable again.
func (l *Link) Unfreeze() { l.frozen.Store(false) }

// IsFrozen reports whether the link is pinned.
func (l *Link) IsFrozen() bool { return l.frozen.Load() }

// Length returns the serialized size of the item in bytes as of the last
// create, load, flush or UpdateLength.
func (l *Link) Length() (int64, error) {
	release, err := l.enter()
	if err != nil {
		return 0, err
	}
	defer release()

	return l.length, nil
}

// Load brings the item into memory. It is a no-op if already loaded.
func (l *Link) Load() error {
	release, err := l.enter()
	if err != nil {
		return err
	}
	defer release()

	return l.db.loadLocked(l)
}

// Unload writes the item to its blocks and drops it from memory.
func (l *Link) Unload() error {
	release, err := l.enter()
	if err != nil {
		return err
	}
	defer release()

	return l.db.unloadLocked(l, false)
}

// Get loads the item if needed and returns it. The link is marked accessed,
// which gives it a second chance in the next eviction sweep.
//
// The returned item may be evicted and reloaded at any time after Get
// returns; mutate it through Update, or call UpdateLength after mutating.
func (l *Link) Get() (Item, error) {
	release, err := l.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := l.db.loadLocked(l); err != nil {
		return nil, err
	}
	l.accessed.Store(true)
	return l.item, nil
}

// Update loads the item, runs fn on it and updates the link's length, all
// without interleaving with eviction of this link.
func (l *Link) Update(fn func(Item) error) error {
	release, err := l.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := l.db.loadLocked(l); err != nil {
		return err
	}
	l.accessed.Store(true)

	if err := fn(l.item); err != nil {
		return err
	}
	return l.db.updateLengthLocked(l)
}

// UpdateLength re-serializes the loaded item to learn its new size and
// adjusts memory accounting. The block write is deferred to the next flush.
// It is a no-op for an unloaded link.
func (l *Link) UpdateLength() error {
	release, err := l.enter()
	if err != nil {
		return err
	}
	defer release()

	return l.db.updateLengthLocked(l)
}

// CreateChild stores item as a new child of l.
func (l *Link) CreateChild(item Item) (*Link, error) {
	if l.removed.Load() {
		return nil, ErrRemoved
	}
	return l.db.createLink(l, item, false)
}

// Remove deletes the link, its item and, recursively, all of its children.
// A second call returns ErrRemoved. Failures removing children are joined
// into the result; children removed before a failure stay removed.
func (l *Link) Remove() error {
	return l.db.removeLink(l, false)
}

// enter acquires the link's section and checks that both the link and the
// database are still usable.
func (l *Link) enter() (func(), error) {
	if l.removed.Load() {
		return nil, ErrRemoved
	}

	release := l.db.coord.Enter(l.gid)
	if l.db.closed.Load() {
		release()
		return nil, ErrClosed
	}
	if l.removed.Load() {
		release()
		return nil, ErrRemoved
	}
	return release, nil
}

func (l *Link) addChild(gid int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.removed.Load() {
		return ErrRemoved
	}
	l.children[gid] = struct{}{}
	return nil
}

func (l *Link) removeChild(gid int64) {
	l.mu.Lock()
	delete(l.children, gid)
	l.mu.Unlock()
}

func (l *Link) takeChildren() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]int64, 0, len(l.children))
	for gid := range l.children {
		out = append(out, gid)
	}
	clear(l.children)
	slices.Sort(out)
	return out
}

func (l *Link) parentGID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.parent
}

func (l *Link) entry() page.Entry {
	return page.Entry{
		Slot:     l.Slot(),
		Parent:   l.parentGID(),
		Children: l.Children(),
		Blocks:   slices.Clone(l.blocks),
		Length:   l.diskLength,
	}
}
