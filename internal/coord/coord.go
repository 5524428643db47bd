// Package coord implements the two-tier coordinator that lets whole-database
// operations interleave safely with per-object operations.
//
// The maintenance section is exclusive: acquiring it waits until no
// per-object section is held, then blocks new entrants until released.
// Per-object sections are shared and counted; entering one waits while the
// maintenance section is held and while another holder owns the same key.
// Holders of different keys run concurrently.
//
// Admission alternates. A pending maintainer holds back fresh entrants so
// that the running ones drain, and every entrant that was waiting when a
// maintainer released is admitted before the next maintainer gets in.
// Callers that already hold a section enter further keys with Join, which
// never yields to a pending maintainer.
//
// Every acquisition returns a release func meant for defer.
package coord

import "sync"

// Coordinator is the maintenance / per-object lock. The zero value is not
// usable; call New.
type Coordinator struct {
	mu          sync.Mutex
	cond        *sync.Cond
	maintenance bool
	pending     int // maintainers waiting for the drain
	active      int
	busy        map[int64]struct{}

	// gen advances on every maintenance release. Entrants queued at that
	// moment are owed admission before the next maintainer.
	gen    uint64
	queued int
	owed   int
}

// New returns a ready Coordinator.
func New() *Coordinator {
	c := &Coordinator{busy: make(map[int64]struct{})}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Maintenance acquires the exclusive section.
func (c *Coordinator) Maintenance() (release func()) {
	c.mu.Lock()
	c.pending++
	for c.maintenance || c.active > 0 || c.owed > 0 {
		c.cond.Wait()
	}
	c.pending--
	c.maintenance = true
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		c.maintenance = false
		c.gen++
		c.owed = c.queued
		c.mu.Unlock()
		c.cond.Broadcast()
	}
}

// EnterShared enters a per-object section that owns no key. Used by
// operations whose target does not exist yet (allocation of a new link).
func (c *Coordinator) EnterShared() (release func()) {
	c.enter(0, false, true)
	return c.exit(0, false)
}

// Enter enters the per-object section for key.
func (c *Coordinator) Enter(key int64) (release func()) {
	c.enter(key, true, true)
	return c.exit(key, true)
}

// Join enters the per-object section for key on behalf of a caller that
// already holds a section. It waits only for the key.
func (c *Coordinator) Join(key int64) (release func()) {
	c.enter(key, true, false)
	return c.exit(key, true)
}

// TryEnter enters the per-object section for key without waiting.
func (c *Coordinator) TryEnter(key int64) (release func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maintenance {
		return nil, false
	}
	if _, held := c.busy[key]; held {
		return nil, false
	}
	c.busy[key] = struct{}{}
	c.active++

	return c.exit(key, true), true
}

func (c *Coordinator) enter(key int64, keyed, yield bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gen
	queued := false
	for c.blocked(key, keyed, yield && gen == c.gen) {
		if !queued {
			queued = true
			c.queued++
		}
		c.cond.Wait()
	}
	if queued {
		c.queued--
		if gen != c.gen {
			c.owed--
		}
	}

	if keyed {
		c.busy[key] = struct{}{}
	}
	c.active++
}

func (c *Coordinator) blocked(key int64, keyed, yield bool) bool {
	if c.maintenance || (yield && c.pending > 0) {
		return true
	}
	if keyed {
		_, held := c.busy[key]
		return held
	}
	return false
}

func (c *Coordinator) exit(key int64, keyed bool) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if keyed {
				delete(c.busy, key)
			}
			c.active--
			c.mu.Unlock()
			c.cond.Broadcast()
		})
	}
}
