package linkdb

import "sync"

// residency is the recency list of loaded links, most recently used at the
// head. Nodes are the links themselves; splices are pointer rewrites under a
// short critical section that is never held across IO.
//
// The list also owns memory accounting: a link is charged to the resource
// controller exactly while it is resident, so the controller's usage always
// equals the summed lengths of loaded links.
type residency struct {
	mu         sync.Mutex
	head, tail *Link
	n          int
}

// unlink removes l from the list without touching its charge. mu must be held.
func (r *residency) unlink(l *Link) {
	if !l.inList {
		return
	}
	if l.prev != nil {
		l.prev.next = l.next
	} else {
		r.head = l.next
	}
	if l.next != nil {
		l.next.prev = l.prev
	} else {
		r.tail = l.prev
	}
	l.prev, l.next = nil, nil
	l.inList = false
	r.n--
}

// pushFront inserts l at the head. mu must be held.
func (r *residency) pushFront(l *Link) {
	if l.inList {
		r.unlink(l)
	}
	l.prev = nil
	l.next = r.head
	if r.head != nil {
		r.head.prev = l
	}
	r.head = l
	if r.tail == nil {
		r.tail = l
	}
	l.inList = true
	r.n++
}

// splice marks l resident, charges size bytes and inserts it at the head.
func (db *DB) splice(l *Link, size int64) {
	db.res.mu.Lock()
	defer db.res.mu.Unlock()

	if !l.resident {
		l.resident = true
		l.charged = size
		db.rc.AcquireMemory(size)
	}
	db.res.pushFront(l)
}

// unsplice drops l from the list and releases its charge.
func (db *DB) unsplice(l *Link) {
	db.res.mu.Lock()
	defer db.res.mu.Unlock()

	db.res.unlink(l)
	if l.resident {
		db.rc.ReleaseMemory(l.charged)
		l.resident = false
		l.charged = 0
	}
}

// recharge moves l to the head and sets its charge to size.
func (db *DB) recharge(l *Link, size int64) {
	db.res.mu.Lock()
	defer db.res.mu.Unlock()

	if !l.resident {
		return
	}
	db.rc.AdjustMemory(size - l.charged)
	l.charged = size
	if l.inList {
		db.res.pushFront(l)
	}
}

// residentLinks returns the listed links from most to least recently used.
func (db *DB) residentLinks() []*Link {
	db.res.mu.Lock()
	defer db.res.mu.Unlock()

	out := make([]*Link, 0, db.res.n)
	for l := db.res.head; l != nil; l = l.next {
		out = append(out, l)
	}
	return out
}
