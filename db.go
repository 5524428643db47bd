package linkdb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/linkdb/codec"
	"github.com/hupe1980/linkdb/internal/compress"
	"github.com/hupe1980/linkdb/internal/coord"
	"github.com/hupe1980/linkdb/internal/freeslot"
	"github.com/hupe1980/linkdb/internal/fs"
	"github.com/hupe1980/linkdb/internal/page"
	"github.com/hupe1980/linkdb/internal/resource"
)

// DB is an open database directory.
type DB struct {
	dir          string
	pageCapacity int
	blockSize    int
	maxMemory    int64
	compression  Compression

	fs         fs.FileSystem
	codec      codec.Codec
	registry   *Registry
	logger     *Logger
	metrics    MetricsObserver
	rc         *resource.Controller
	cache      *page.BlockCache
	lock       *dirLock
	backupRate int64

	coord *coord.Coordinator
	free  *freeslot.Queue
	res   residency

	evictMu sync.Mutex
	growMu  sync.Mutex

	pagesMu sync.RWMutex
	pages   []*page.Page[Link]

	root   *Link
	closed atomic.Bool
}

func newDB(dir string, cfg *config, o options, lock *dirLock) (*DB, error) {
	comp := o.compression
	if !o.compressionSet {
		comp, _ = compress.Parse(cfg.Compression)
	}

	db := &DB{
		dir:          dir,
		pageCapacity: cfg.PageCapacity,
		blockSize:    cfg.BlockSize,
		maxMemory:    cfg.MaxMemory,
		compression:  comp,
		fs:           o.fs,
		codec:        o.codec,
		registry:     o.registry,
		logger:       o.logger.WithDir(dir),
		metrics:      o.metrics,
		lock:         lock,
		backupRate:   o.backupRate,
		coord:        coord.New(),
		free:         freeslot.New(),
		rc: resource.NewController(resource.Config{
			MemoryBudgetBytes:    cfg.MaxMemory,
			MaxBackgroundWorkers: int64(max(o.loadConcurrency, 1)),
			IOLimitBytesPerSec:   o.backupRate,
		}),
	}

	if o.blockCacheSize > 0 {
		cache, err := page.NewBlockCache(o.blockCacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: block cache: %w", ErrInvalidConfig, err)
		}
		db.cache = cache
	}

	return db, nil
}

// Open opens the existing database in dir.
func Open(dir string, opts ...Option) (*DB, error) {
	o := applyOptions(opts)

	db, err := open(dir, o)
	if err != nil {
		o.logger.WithDir(dir).LogOpen(context.Background(), false, 0, 0, err)
		return nil, err
	}

	stats := db.Stats()
	db.logger.LogOpen(context.Background(), false, stats.Pages, stats.Links, nil)
	return db, nil
}

func open(dir string, o options) (*DB, error) {
	fail := func(err error) (*DB, error) {
		return nil, &DatabaseError{Op: "open", Dir: dir, Err: translateError(err)}
	}

	cfg, err := readConfig(o.fs, dir)
	if err != nil {
		return fail(err)
	}
	if !o.codecSet {
		c, ok := codec.Lookup(cfg.Codec)
		if !ok {
			return fail(fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, cfg.Codec))
		}
		o.codec = c
	} else if cfg.Codec != o.codec.Name() {
		return fail(fmt.Errorf("%w: database uses codec %q, got %q", ErrInvalidConfig, cfg.Codec, o.codec.Name()))
	}

	lock, err := lockDir(o.fs, dir)
	if err != nil {
		return fail(err)
	}

	db, err := newDB(dir, cfg, o, lock)
	if err != nil {
		_ = lock.release()
		return fail(err)
	}

	release := db.coord.Maintenance()
	defer release()

	if err := db.replay(cfg.NextPageID); err != nil {
		_ = db.teardown()
		return fail(err)
	}

	db.root = db.LinkByGID(rootGID)
	if db.root == nil {
		_ = db.teardown()
		return fail(fmt.Errorf("%w: root link missing", ErrCorrupt))
	}

	return db, nil
}

// replay opens pages [0, n) in parallel and rebuilds their slot directories
// and the free-slot queue.
func (db *DB) replay(n int) error {
	pages := make([]*page.Page[Link], n)

	g, ctx := errgroup.WithContext(context.Background())
	for id := 0; id < n; id++ {
		if err := db.rc.AcquireBackground(ctx); err != nil {
			break
		}
		g.Go(func() error {
			defer db.rc.ReleaseBackground()

			p, err := db.replayPage(id)
			pages[id] = p
			return err
		})
	}

	if err := g.Wait(); err != nil {
		for _, p := range pages {
			if p != nil {
				_ = p.Close()
			}
		}
		return err
	}

	db.pagesMu.Lock()
	db.pages = pages
	db.pagesMu.Unlock()

	for _, p := range pages {
		for _, r := range freeslot.EmptyRuns(p.ID(), p.Capacity(), p.Used) {
			db.free.Push(r)
		}
	}
	return nil
}

func (db *DB) replayPage(id int) (*page.Page[Link], error) {
	p, err := page.Open[Link](db.fs, db.dir, id, db.pageCapacity, db.blockSize, db.cache)
	if err != nil {
		return nil, err
	}

	entries, err := page.ReadDirectory(db.fs, p)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	for _, e := range entries {
		gid := int64(id)*int64(db.pageCapacity) + int64(e.Slot)

		l := newLink(db, gid, p, e.Parent)
		l.blocks = e.Blocks
		l.diskLength = e.Length
		l.length = e.Length
		for _, c := range e.Children {
			l.children[c] = struct{}{}
		}

		if err := p.SetLinkByIndex(e.Slot, l); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("%w: %w", page.ErrCorrupt, err)
		}
	}

	return p, nil
}

// Create creates a new database in dir. It fails with ErrExist if dir
// already holds one.
func Create(dir string, pageCapacity, blockSize int, maxMemory int64, opts ...Option) (*DB, error) {
	o := applyOptions(opts)

	db, err := create(dir, pageCapacity, blockSize, maxMemory, o)
	if err != nil {
		o.logger.WithDir(dir).LogOpen(context.Background(), true, 0, 0, err)
		return nil, err
	}

	db.logger.LogOpen(context.Background(), true, 1, 1, nil)
	return db, nil
}

func create(dir string, pageCapacity, blockSize int, maxMemory int64, o options) (*DB, error) {
	fail := func(err error) (*DB, error) {
		return nil, &DatabaseError{Op: "create", Dir: dir, Err: translateError(err)}
	}

	if !o.compression.Valid() {
		return fail(fmt.Errorf("%w: unknown compression %d", ErrInvalidConfig, o.compression))
	}

	cfg := &config{
		Version:      configVersion,
		PageCapacity: pageCapacity,
		BlockSize:    blockSize,
		MaxMemory:    maxMemory,
		Compression:  o.compression.String(),
		Codec:        o.codec.Name(),
	}
	if err := cfg.validate(); err != nil {
		return fail(err)
	}

	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	lock, err := lockDir(o.fs, dir)
	if err != nil {
		return fail(err)
	}

	exists, err := configExists(o.fs, dir)
	if err == nil && exists {
		err = ErrExist
	}
	if err != nil {
		_ = lock.release()
		return fail(err)
	}

	db, err := newDB(dir, cfg, o, lock)
	if err != nil {
		_ = lock.release()
		return fail(err)
	}

	root, err := db.createLink(nil, &rootItem{Names: make(map[string]int64)}, false)
	if err == nil && root.gid != rootGID {
		err = fmt.Errorf("%w: root allocated at gid %d", ErrCorrupt, root.gid)
	}
	if err != nil {
		_ = db.teardown()
		return fail(err)
	}
	db.root = root

	release := db.coord.Maintenance()
	err = db.saveLocked()
	release()
	if err != nil {
		_ = db.teardown()
		return fail(err)
	}

	return db, nil
}

// GetLink returns the top-level link called name, creating it with factory
// if it does not exist. Concurrent calls for the same name return the same
// link.
func (db *DB) GetLink(name string, factory func() Item) (*Link, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidRegistration)
	}

	proto := factory()
	if err := db.registry.ensure(proto); err != nil {
		return nil, err
	}

	release, err := db.root.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	root := db.root
	if err := db.loadLocked(root); err != nil {
		return nil, err
	}
	root.accessed.Store(true)

	names := root.item.(*rootItem).Names
	if gid, ok := names[name]; ok {
		if l := db.LinkByGID(gid); l != nil && !l.removed.Load() {
			return l, nil
		}
		delete(names, name)
	}

	l, err := db.createLink(root, proto, true)
	if err != nil {
		return nil, err
	}
	names[name] = l.gid

	if err := db.updateLengthLocked(root); err != nil {
		return nil, err
	}
	return l, nil
}

// Names returns the names of all top-level links.
func (db *DB) Names() ([]string, error) {
	release, err := db.root.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := db.loadLocked(db.root); err != nil {
		return nil, err
	}

	names := db.root.item.(*rootItem).Names
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// Save writes the configuration and every loaded link to disk. Each page's
// directory is replaced only after its blocks are synced.
func (db *DB) Save() error {
	release := db.coord.Maintenance()
	defer release()

	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.saveLocked(); err != nil {
		return &DatabaseError{Op: "save", Dir: db.dir, Err: err}
	}
	return nil
}

func (db *DB) saveLocked() (err error) {
	start := time.Now()
	pages := db.pageList()
	flushed := 0

	defer func() {
		db.metrics.OnSave(time.Since(start), len(pages), err)
		db.logger.LogSave(context.Background(), len(pages), flushed, err)
	}()

	if err := writeConfig(db.fs, db.dir, db.config(len(pages))); err != nil {
		return err
	}

	for _, p := range pages {
		n, err := db.savePage(p)
		flushed += n
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) savePage(p *page.Page[Link]) (int, error) {
	store := p.Store()
	store.BeginBulk()

	links := p.All()
	entries := make([]page.Entry, 0, len(links))
	flushed := 0

	for _, l := range links {
		if l.item != nil {
			if err := db.flushLocked(l); err != nil {
				_ = store.EndBulk()
				return flushed, err
			}
			flushed++
		}
		entries = append(entries, l.entry())
	}

	if err := store.EndBulk(); err != nil {
		return flushed, translateError(err)
	}
	if err := page.WriteDirectory(db.fs, p, entries, db.compression); err != nil {
		return flushed, translateError(err)
	}
	return flushed, nil
}

func (db *DB) config(pages int) *config {
	return &config{
		Version:      configVersion,
		PageCapacity: db.pageCapacity,
		BlockSize:    db.blockSize,
		MaxMemory:    db.maxMemory,
		NextPageID:   pages,
		Compression:  db.compression.String(),
		Codec:        db.codec.Name(),
	}
}

// Close saves, drops every loaded item and releases all files. The DB is
// unusable afterwards even if the save failed; the error is returned.
func (db *DB) Close() error {
	release := db.coord.Maintenance()
	defer release()

	if db.closed.Load() {
		return ErrClosed
	}

	saveErr := db.saveLocked()

	for _, p := range db.pageList() {
		for _, l := range p.All() {
			if l.item != nil {
				l.item = nil
				db.unsplice(l)
			}
		}
	}

	err := errors.Join(saveErr, db.teardown())
	db.closed.Store(true)

	db.logger.LogClose(context.Background(), err)
	if err != nil {
		return &DatabaseError{Op: "close", Dir: db.dir, Err: err}
	}
	return nil
}

// teardown closes pages, the cache and the directory lock.
func (db *DB) teardown() error {
	db.pagesMu.Lock()
	pages := db.pages
	db.pages = nil
	db.pagesMu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.Close(); err != nil {
			errs = append(errs, translateError(err))
		}
	}
	if db.cache != nil {
		db.cache.Close()
	}
	if err := db.lock.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LinkByGID returns the link with gid, or nil if the slot is empty.
func (db *DB) LinkByGID(gid int64) *Link {
	if gid < 0 {
		return nil
	}
	p := db.pageByID(int(gid / int64(db.pageCapacity)))
	if p == nil {
		return nil
	}
	return p.LinkByIndex(int(gid % int64(db.pageCapacity)))
}

// PageByGID returns the index of the page that owns gid, and whether that
// page exists.
func (db *DB) PageByGID(gid int64) (int, bool) {
	if gid < 0 {
		return 0, false
	}
	id := int(gid / int64(db.pageCapacity))
	return id, db.pageByID(id) != nil
}

func (db *DB) pageByID(id int) *page.Page[Link] {
	db.pagesMu.RLock()
	defer db.pagesMu.RUnlock()

	if id < 0 || id >= len(db.pages) {
		return nil
	}
	return db.pages[id]
}

func (db *DB) pageList() []*page.Page[Link] {
	db.pagesMu.RLock()
	defer db.pagesMu.RUnlock()
	return append([]*page.Page[Link](nil), db.pages...)
}

// Dir returns the database directory.
func (db *DB) Dir() string { return db.dir }

// PageCapacity returns the number of slots per page.
func (db *DB) PageCapacity() int { return db.pageCapacity }

// BlockSize returns the block size in bytes.
func (db *DB) BlockSize() int { return db.blockSize }

// MaxMemory returns the memory budget in bytes. The budget is soft: when
// every resident link is frozen or busy it is exceeded rather than failing.
func (db *DB) MaxMemory() int64 { return db.maxMemory }

// CurrentMemory returns the summed length of all loaded links.
func (db *DB) CurrentMemory() int64 { return db.rc.MemoryUsage() }

// Registry returns the item type registry.
func (db *DB) Registry() *Registry { return db.registry }

// Stats is a point-in-time summary of a database.
type Stats struct {
	Pages         int
	Links         int
	Loaded        int
	CurrentMemory int64
	MaxMemory     int64
	FreeRanges    int
	FreeSlots     int
	Blocks        int
	FreeBlocks    int
}

// Stats returns a snapshot of the database state.
func (db *DB) Stats() Stats {
	s := Stats{
		CurrentMemory: db.rc.MemoryUsage(),
		MaxMemory:     db.maxMemory,
		FreeRanges:    db.free.Len(),
		FreeSlots:     db.free.Free(),
	}

	pages := db.pageList()
	s.Pages = len(pages)

	db.res.mu.Lock()
	defer db.res.mu.Unlock()

	for _, p := range pages {
		s.Links += p.Len()
		s.Blocks += p.Store().Count()
		s.FreeBlocks += p.Store().FreeCount()
		for _, l := range p.All() {
			if l.resident {
				s.Loaded++
			}
		}
	}
	return s
}
