package linkdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/linkdb/internal/freeslot"
	"github.com/hupe1980/linkdb/internal/page"
)

// The *Locked functions below require the caller to hold the link's section
// or the maintenance section.

// createLink allocates a gid, binds item to it and leaves it loaded. The new
// link owns blocks for its initial length but nothing is written until the
// next flush. joined is set when the caller already holds a section.
func (db *DB) createLink(parent *Link, item Item, joined bool) (*Link, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: nil item", ErrInvalidRegistration)
	}
	if err := db.registry.ensure(item); err != nil {
		return nil, err
	}

	if !joined {
		leave := db.coord.EnterShared()
		defer leave()
	}

	if db.closed.Load() {
		return nil, ErrClosed
	}

	p, slot, err := db.allocateSlot()
	if err != nil {
		return nil, &AllocationError{GID: -1, Page: -1, Err: translateError(err)}
	}
	gid := int64(p.ID())*int64(db.pageCapacity) + int64(slot)

	release := db.coord.Join(gid)
	defer release()

	parentGID := int64(-1)
	if parent != nil {
		parentGID = parent.gid
	}
	l := newLink(db, gid, p, parentGID)

	fail := func(err error) (*Link, error) {
		p.RemoveLinkByIndex(l.blocks, slot)
		db.free.Push(freeslot.Range{Page: p.ID(), Start: slot, End: slot})
		return nil, &AllocationError{GID: gid, Page: p.ID(), Err: translateError(err)}
	}

	if err := p.SetLinkByIndex(slot, l); err != nil {
		return nil, &AllocationError{GID: gid, Page: p.ID(), Err: err}
	}

	item.OnCreate(l)
	item.OnLoad(l)

	data, err := encodeItem(db.codec, db.registry, gid, item)
	if err != nil {
		return fail(err)
	}
	size := int64(len(data))

	blocks, err := p.Store().FitBlockIDs(nil, size)
	if err != nil {
		return fail(err)
	}
	l.blocks = blocks

	if parent != nil {
		if err := parent.addChild(gid); err != nil {
			return fail(err)
		}
	}

	if err := db.fitMemory(size); err != nil {
		if parent != nil {
			parent.removeChild(gid)
		}
		return fail(err)
	}

	l.item = item
	l.length = size
	db.splice(l, size)

	return l, nil
}

// allocateSlot takes the next free slot, growing the page set when none is
// left.
func (db *DB) allocateSlot() (*page.Page[Link], int, error) {
	for {
		if pid, slot, ok := db.free.Next(); ok {
			p := db.pageByID(pid)
			if p == nil {
				return nil, 0, fmt.Errorf("%w: free slot on unknown page %d", ErrCorrupt, pid)
			}
			return p, slot, nil
		}

		db.growMu.Lock()
		if db.free.Len() > 0 {
			db.growMu.Unlock()
			continue
		}
		_, err := db.addPage()
		db.growMu.Unlock()
		if err != nil {
			return nil, 0, err
		}
	}
}

// addPage opens the next page and queues its whole slot range.
func (db *DB) addPage() (*page.Page[Link], error) {
	db.pagesMu.Lock()
	id := len(db.pages)
	p, err := page.Open[Link](db.fs, db.dir, id, db.pageCapacity, db.blockSize, db.cache)
	if err != nil {
		db.pagesMu.Unlock()
		return nil, err
	}
	db.pages = append(db.pages, p)
	db.pagesMu.Unlock()

	db.free.Push(freeslot.Range{Page: id, Start: 0, End: db.pageCapacity - 1})
	return p, nil
}

// loadLocked reads, decodes and splices l. No-op if already loaded.
func (db *DB) loadLocked(l *Link) error {
	if l.item != nil {
		return nil
	}

	start := time.Now()
	item, err := db.readItem(l)
	if err != nil {
		db.metrics.OnLoad(time.Since(start), l.diskLength, err)
		return err
	}

	item.OnLoad(l)

	if err := db.fitMemory(l.diskLength); err != nil {
		return err
	}

	l.item = item
	l.length = l.diskLength
	db.splice(l, l.length)

	db.metrics.OnLoad(time.Since(start), l.length, nil)
	return nil
}

func (db *DB) readItem(l *Link) (Item, error) {
	data, err := l.page.Store().ReadBlocks(l.blocks, l.diskLength)
	if err != nil {
		return nil, translateError(err)
	}
	return decodeItem(db.codec, db.registry, l.gid, data)
}

// unloadLocked drops l's item, flushing it first unless justMemory is set.
func (db *DB) unloadLocked(l *Link, justMemory bool) error {
	if l.item == nil {
		return nil
	}
	if !justMemory {
		if err := db.flushLocked(l); err != nil {
			return err
		}
	}

	l.item = nil
	db.unsplice(l)
	return nil
}

// flushLocked serializes l's item into its blocks, resizing the block list
// as needed.
func (db *DB) flushLocked(l *Link) error {
	data, err := encodeItem(db.codec, db.registry, l.gid, l.item)
	if err != nil {
		return err
	}
	size := int64(len(data))

	store := l.page.Store()

	blocks, err := store.FitBlockIDs(l.blocks, size)
	if err != nil {
		return translateError(err)
	}
	l.blocks = blocks

	if err := store.WriteBlocks(blocks, data); err != nil {
		return translateError(err)
	}

	l.diskLength = size
	if size != l.length {
		l.length = size
		db.recharge(l, size)
	}
	return nil
}

// updateLengthLocked re-serializes a loaded item and recharges its size.
func (db *DB) updateLengthLocked(l *Link) error {
	if l.item == nil {
		return nil
	}

	data, err := encodeItem(db.codec, db.registry, l.gid, l.item)
	if err != nil {
		return err
	}
	size := int64(len(data))

	if delta := size - l.length; delta > 0 {
		if err := db.fitMemory(delta); err != nil {
			return err
		}
	}

	l.length = size
	db.recharge(l, size)
	return nil
}

// removeLink implements Link.Remove. joined is set for children removed by
// a cascade, whose parent section is held.
func (db *DB) removeLink(l *Link, joined bool) error {
	if l.gid == rootGID {
		return ErrRootLink
	}
	if !l.removed.CompareAndSwap(false, true) {
		return ErrRemoved
	}

	err := db.removeLocked(l, joined)
	db.logger.LogRemove(context.Background(), l.gid, err)
	return err
}

func (db *DB) removeLocked(l *Link, joined bool) error {
	parentGID := l.parentGID()

	if parentGID == rootGID {
		if err := db.forgetName(l.gid); err != nil {
			return err
		}
	}

	enter := db.coord.Enter
	if joined {
		enter = db.coord.Join
	}
	release := enter(l.gid)
	defer release()

	if db.closed.Load() {
		return ErrClosed
	}

	if err := db.unloadLocked(l, true); err != nil {
		return err
	}

	if parent := db.LinkByGID(parentGID); parent != nil {
		parent.removeChild(l.gid)
	}

	var errs []error
	for _, gid := range l.takeChildren() {
		child := db.LinkByGID(gid)
		if child == nil || child.parentGID() != l.gid {
			continue
		}
		if err := db.removeLink(child, true); err != nil && !errors.Is(err, ErrRemoved) {
			errs = append(errs, fmt.Errorf("child %d: %w", gid, err))
		}
	}

	slot := l.Slot()
	l.page.RemoveLinkByIndex(l.blocks, slot)
	l.blocks = nil
	l.diskLength, l.length = 0, 0
	db.free.Push(freeslot.Range{Page: l.page.ID(), Start: slot, End: slot})

	return errors.Join(errs...)
}

// forgetName unbinds every root name that points at gid.
func (db *DB) forgetName(gid int64) error {
	release := db.coord.Enter(rootGID)
	defer release()

	if db.closed.Load() {
		return ErrClosed
	}

	root := db.root
	if err := db.loadLocked(root); err != nil {
		return err
	}
	if root.item.(*rootItem).forget(gid) {
		return db.updateLengthLocked(root)
	}
	return nil
}
