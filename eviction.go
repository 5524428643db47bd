package linkdb

import (
	"context"
)

// fitMemory evicts least recently used links until incoming more bytes fit
// the budget.
//
// The sweep inspects the tail of the residency list:
//   - the accessed flag of the inspected link is always cleared;
//   - a frozen link, or one whose section is held by another operation, is
//     set aside and reinserted at the head when the sweep ends;
//   - an accessed link moves to the head;
//   - anything else is flushed and unloaded.
//
// If only pinned links remain the sweep gives up and the budget is exceeded.
// The first failing eviction aborts the sweep and is returned; links set
// aside so far are still reinserted.
func (db *DB) fitMemory(incoming int64) error {
	if !db.rc.Exceeds(incoming) {
		return nil
	}

	db.evictMu.Lock()
	defer db.evictMu.Unlock()

	var aside []*Link
	defer func() {
		if len(aside) == 0 {
			return
		}
		db.res.mu.Lock()
		for _, l := range aside {
			if l.resident && !l.inList {
				db.res.pushFront(l)
			}
		}
		db.res.mu.Unlock()
	}()

	for db.rc.Exceeds(incoming) {
		db.res.mu.Lock()
		l := db.res.tail
		if l == nil {
			db.res.mu.Unlock()
			break
		}

		accessed := l.accessed.Swap(false)
		if l.frozen.Load() {
			db.res.unlink(l)
			aside = append(aside, l)
			db.res.mu.Unlock()
			continue
		}

		if accessed {
			db.res.pushFront(l)
			db.res.mu.Unlock()
			continue
		}

		release, ok := db.coord.TryEnter(l.gid)
		if !ok {
			db.res.unlink(l)
			aside = append(aside, l)
			db.res.mu.Unlock()
			continue
		}
		db.res.mu.Unlock()

		size := l.length
		var err error
		if l.item == nil {
			db.unsplice(l)
		} else {
			// A link that is being removed is dropped without a flush.
			err = db.unloadLocked(l, l.removed.Load())
		}
		release()

		db.metrics.OnEvict(size, err)
		db.logger.LogEvict(context.Background(), l.gid, size, err)
		if err != nil {
			return err
		}
	}

	if db.rc.Exceeds(incoming) {
		db.logger.LogOverBudget(context.Background(), db.rc.MemoryUsage(), db.rc.MemoryBudget(), incoming, len(aside))
		db.metrics.OnMemory(db.rc.MemoryUsage()+incoming, db.rc.MemoryBudget())
	}
	return nil
}
