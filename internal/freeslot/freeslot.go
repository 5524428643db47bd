// Package freeslot implements the free-slot allocator: a first-in-first-out
// queue of reusable slot-index ranges.
//
// Each entry names a page and an inclusive index range. Allocation always
// consumes the front entry from its start; a fully consumed entry is popped.
// A fresh page contributes one range spanning its whole capacity, a single
// removal contributes a width-one range at the back. Allocation is first-fit by
// age, not best-fit, which keeps it O(1) at the cost of some fragmentation.
package freeslot

import "sync"

// Range is an inclusive run of free slot indices within one page.
type Range struct {
	Page  int
	Start int
	End   int
}

// Len returns the number of slots left in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Queue is a FIFO of free ranges. It is safe for concurrent use; every method
// holds the queue lock only for the constant-time enqueue/dequeue.
type Queue struct {
	mu     sync.Mutex
	ranges []Range
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push appends r to the back of the queue. Empty ranges are ignored.
func (q *Queue) Push(r Range) {
	if r.Len() == 0 {
		return
	}

	q.mu.Lock()
	q.ranges = append(q.ranges, r)
	q.mu.Unlock()
}

// Next consumes one slot from the front range.
func (q *Queue) Next() (page, index int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ranges) == 0 {
		return 0, 0, false
	}

	front := &q.ranges[0]
	page, index = front.Page, front.Start
	front.Start++

	if front.Len() == 0 {
		q.ranges[0] = Range{}
		q.ranges = q.ranges[1:]
	}

	return page, index, true
}

// Len returns the number of queued ranges.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ranges)
}

// Free returns the total number of queued slots.
func (q *Queue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, r := range q.ranges {
		n += r.Len()
	}
	return n
}

// EmptyRuns returns the maximal runs of indices in [0, capacity) for which
// used reports false, as ranges of page.
func EmptyRuns(page, capacity int, used func(index int) bool) []Range {
	var runs []Range

	start := -1
	for i := 0; i < capacity; i++ {
		if used(i) {
			if start >= 0 {
				runs = append(runs, Range{Page: page, Start: start, End: i - 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		runs = append(runs, Range{Page: page, Start: start, End: capacity - 1})
	}

	return runs
}
