package coord

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// state returns the number of held sections and whether key is held.
func (c *Coordinator) state(key int64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, held := c.busy[key]
	return c.active, held
}

func TestEnter_DifferentKeysRunConcurrently(t *testing.T) {
	c := New()

	r1 := c.Enter(1)
	r2 := c.Enter(2)
	active, _ := c.state(1)
	assert.Equal(t, 2, active)

	r1()
	r2()
	active, held := c.state(1)
	assert.Equal(t, 0, active)
	assert.False(t, held)
}

func TestEnter_SameKeyIsExclusive(t *testing.T) {
	c := New()
	release := c.Enter(7)

	entered := make(chan struct{})
	go func() {
		r := c.Enter(7)
		close(entered)
		r()
	}()

	select {
	case <-entered:
		t.Fatal("second holder entered while key was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	<-entered
}

func TestTryEnter(t *testing.T) {
	c := New()

	release, ok := c.TryEnter(3)
	require.True(t, ok)
	_, held := c.state(3)
	assert.True(t, held)

	_, ok = c.TryEnter(3)
	assert.False(t, ok)

	release()
	release() // idempotent
	active, held := c.state(3)
	assert.False(t, held)
	assert.Equal(t, 0, active)

	m := c.Maintenance()
	_, ok = c.TryEnter(3)
	assert.False(t, ok)
	m()
}

func TestMaintenance_DrainsObjectSections(t *testing.T) {
	c := New()
	release := c.Enter(1)

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		m := c.Maintenance()
		acquired.Store(true)
		m()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, acquired.Load())

	release()
	<-done
	assert.True(t, acquired.Load())
}

func TestMaintenance_BlocksNewEntrants(t *testing.T) {
	c := New()
	m := c.Maintenance()

	var entered atomic.Bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r := c.Enter(1)
		entered.Store(true)
		r()
	}()
	go func() {
		defer wg.Done()
		r := c.EnterShared()
		r()
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, entered.Load())

	m()
	wg.Wait()
	assert.True(t, entered.Load())
}

func TestPendingMaintenance_HoldsBackFreshEntrants(t *testing.T) {
	c := New()
	outer := c.Enter(1)

	var maintained atomic.Bool
	mdone := make(chan struct{})
	go func() {
		m := c.Maintenance()
		maintained.Store(true)
		m()
		close(mdone)
	}()
	time.Sleep(20 * time.Millisecond)

	var entered atomic.Bool
	edone := make(chan struct{})
	go func() {
		r := c.Enter(2)
		entered.Store(true)
		r()
		close(edone)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, entered.Load())

	// A holder can still take another key while a maintainer is waiting.
	inner := c.Join(42)
	inner()
	outer()

	<-mdone
	<-edone
	assert.True(t, maintained.Load())
	assert.True(t, entered.Load())
}

func TestMaintenanceLoop_AdmitsWaitingEntrants(t *testing.T) {
	c := New()

	stop := make(chan struct{})
	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			m := c.Maintenance()
			m()
		}
	}()

	var progress atomic.Int64
	var workers sync.WaitGroup
	for w := range 4 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for range 50 {
				r := c.Enter(int64(w))
				progress.Add(1)
				r()
			}
		}()
	}

	finished := make(chan struct{})
	go func() {
		workers.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatalf("workers starved: %d of 200 entries", progress.Load())
	}

	close(stop)
	loops.Wait()
	assert.Equal(t, int64(200), progress.Load())
}

func TestOverlappingEntrants_AdmitMaintenance(t *testing.T) {
	c := New()

	stop := make(chan struct{})
	var workers sync.WaitGroup
	for w := range 4 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r := c.Enter(int64(w))
				time.Sleep(time.Millisecond)
				r()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for range 20 {
			m := c.Maintenance()
			m()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("maintenance starved by overlapping entrants")
	}

	close(stop)
	workers.Wait()
}
