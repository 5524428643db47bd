package page

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/hupe1980/linkdb/internal/fs"
)

// BlockCache caches block contents across all block stores of a database.
// Keys are (page << 32 | block).
type BlockCache = ristretto.Cache[uint64, []byte]

// NewBlockCache returns a cache bounded to maxBytes of block data.
func NewBlockCache(maxBytes int64) (*BlockCache, error) {
	return ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters:        max(maxBytes/64, 1024),
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
}

// BlockStore is a file of fixed-size blocks with a free-block set.
//
// Reads and writes of distinct blocks may run concurrently. Block allocation
// and release are serialized by an internal mutex that is never held across
// file IO except for the file extension in FitBlockIDs.
type BlockStore struct {
	page      int
	path      string
	blockSize int
	cache     *BlockCache

	mu      sync.Mutex
	f       fs.File
	count   uint32
	free    *roaring.Bitmap
	bulk    bool
	pending map[uint32][]byte
}

// OpenBlockStore opens or creates the block file at path. Every block present
// in the file starts out free; callers claim live blocks with Reserve.
func OpenBlockStore(fsys fs.FileSystem, path string, page, blockSize int, cache *BlockCache) (*BlockStore, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("page: invalid block size %d", blockSize)
	}

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &IOError{Page: page, Op: "open", Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &IOError{Page: page, Op: "stat", Err: err}
	}

	count := uint32(info.Size() / int64(blockSize))

	free := roaring.New()
	free.AddRange(0, uint64(count))

	return &BlockStore{
		page:      page,
		path:      path,
		blockSize: blockSize,
		cache:     cache,
		f:         f,
		count:     count,
		free:      free,
	}, nil
}

// BlockSize returns the fixed block size in bytes.
func (s *BlockStore) BlockSize() int { return s.blockSize }

// Count returns the number of blocks in the file, used or free.
func (s *BlockStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.count)
}

// FreeCount returns the number of free blocks.
func (s *BlockStore) FreeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.free.GetCardinality())
}

// BlocksFor returns how many blocks hold length bytes.
func (s *BlockStore) BlocksFor(length int64) int {
	if length <= 0 {
		return 0
	}
	return int((length + int64(s.blockSize) - 1) / int64(s.blockSize))
}

// Reserve marks ids as used. It fails if a block is outside the file or
// already claimed, which means two directory entries share a block.
func (s *BlockStore) Reserve(ids []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if id >= s.count {
			return fmt.Errorf("%w: block %d beyond end of page %d", ErrCorrupt, id, s.page)
		}
		if !s.free.CheckedRemove(id) {
			return fmt.Errorf("%w: block %d of page %d claimed twice", ErrCorrupt, id, s.page)
		}
	}
	return nil
}

// Release returns ids to the free set.
func (s *BlockStore) Release(ids []uint32) {
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	for _, id := range ids {
		s.free.Add(id)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.evict(ids)
}

// FitBlockIDs grows or shrinks current to exactly cover length bytes. Owned
// blocks are kept in order; surplus blocks are released, missing blocks come
// from the free set first and from extending the file second.
func (s *BlockStore) FitBlockIDs(current []uint32, length int64) ([]uint32, error) {
	need := s.BlocksFor(length)

	if need <= len(current) {
		s.Release(current[need:])
		return slices.Clip(current[:need]), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint32, len(current), need)
	copy(out, current)

	for len(out) < need && !s.free.IsEmpty() {
		id := s.free.Minimum()
		s.free.Remove(id)
		out = append(out, id)
	}

	if missing := need - len(out); missing > 0 {
		grown := s.count + uint32(missing)
		if !s.bulk {
			if err := s.f.Truncate(int64(grown) * int64(s.blockSize)); err != nil {
				for _, id := range out[len(current):] {
					s.free.Add(id)
				}
				return nil, &IOError{Page: s.page, Op: "grow", Err: err}
			}
		}
		for id := s.count; id < grown; id++ {
			out = append(out, id)
		}
		s.count = grown
	}

	return out, nil
}

// ReadBlocks reads length bytes spread over ids.
func (s *BlockStore) ReadBlocks(ids []uint32, length int64) ([]byte, error) {
	if length < 0 || int64(len(ids))*int64(s.blockSize) < length {
		return nil, fmt.Errorf("%w: %d bytes do not fit %d blocks", ErrCorrupt, length, len(ids))
	}

	buf := make([]byte, length)
	for i, id := range ids {
		start := int64(i) * int64(s.blockSize)
		if start >= length {
			break
		}
		end := min(start+int64(s.blockSize), length)

		if err := s.readBlock(id, buf[start:end]); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

func (s *BlockStore) readBlock(id uint32, dst []byte) error {
	if s.inBulk() {
		s.mu.Lock()
		data, ok := s.pending[id]
		s.mu.Unlock()
		if ok {
			copy(dst, data)
			return nil
		}
	}

	key := s.cacheKey(id)
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok && len(data) >= len(dst) {
			copy(dst, data)
			return nil
		}
	}

	n, err := s.f.ReadAt(dst, int64(id)*int64(s.blockSize))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(dst)) {
		return &IOError{Page: s.page, Op: "read", Err: err}
	}

	if s.cache != nil {
		s.cache.Set(key, slices.Clone(dst), int64(len(dst)))
	}
	return nil
}

// WriteBlocks writes data across ids. In bulk mode the write is buffered
// until EndBulk.
func (s *BlockStore) WriteBlocks(ids []uint32, data []byte) error {
	if int64(len(ids))*int64(s.blockSize) < int64(len(data)) {
		return fmt.Errorf("page: %d bytes do not fit %d blocks", len(data), len(ids))
	}

	s.evict(ids)

	s.mu.Lock()
	if s.bulk {
		for i, id := range ids {
			s.pending[id] = slices.Clone(s.chunk(data, i))
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	for i, id := range ids {
		chunk := s.chunk(data, i)
		if len(chunk) == 0 {
			continue
		}
		if _, err := s.f.WriteAt(chunk, int64(id)*int64(s.blockSize)); err != nil {
			return &IOError{Page: s.page, Op: "write", Err: err}
		}
	}
	return nil
}

func (s *BlockStore) chunk(data []byte, i int) []byte {
	start := i * s.blockSize
	if start >= len(data) {
		return nil
	}
	return data[start:min(start+s.blockSize, len(data))]
}

// BeginBulk starts buffering block writes. File growth is deferred to EndBulk.
func (s *BlockStore) BeginBulk() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bulk {
		return
	}
	s.bulk = true
	s.pending = make(map[uint32][]byte)
}

// EndBulk extends the file once, writes buffered blocks in block order and
// syncs. Buffered writes are discarded on failure.
func (s *BlockStore) EndBulk() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bulk {
		return nil
	}
	pending := s.pending
	s.bulk = false
	s.pending = nil

	size := int64(s.count) * int64(s.blockSize)
	info, err := s.f.Stat()
	if err != nil {
		return &IOError{Page: s.page, Op: "stat", Err: err}
	}
	if info.Size() < size {
		if err := s.f.Truncate(size); err != nil {
			return &IOError{Page: s.page, Op: "grow", Err: err}
		}
	}

	ids := make([]uint32, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		data := pending[id]
		if len(data) == 0 {
			continue
		}
		if _, err := s.f.WriteAt(data, int64(id)*int64(s.blockSize)); err != nil {
			return &IOError{Page: s.page, Op: "write", Err: err}
		}
	}

	if err := s.f.Sync(); err != nil {
		return &IOError{Page: s.page, Op: "sync", Err: err}
	}
	return nil
}

func (s *BlockStore) inBulk() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulk
}

// Close closes the block file.
func (s *BlockStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return &IOError{Page: s.page, Op: "close", Err: err}
	}
	return nil
}

func (s *BlockStore) cacheKey(id uint32) uint64 {
	return uint64(s.page)<<32 | uint64(id)
}

func (s *BlockStore) evict(ids []uint32) {
	if s.cache == nil {
		return
	}
	for _, id := range ids {
		s.cache.Del(s.cacheKey(id))
	}
}
