package linkdb

import (
	"sync/atomic"
	"time"
)

// MetricsObserver receives operational events. Implementations must be safe
// for concurrent use and must not call back into the database.
type MetricsObserver interface {
	// OnLoad is called after a link is read from its blocks and decoded.
	OnLoad(duration time.Duration, bytes int64, err error)

	// OnEvict is called after the eviction sweep unloads a link.
	OnEvict(bytes int64, err error)

	// OnSave is called after a save pass.
	OnSave(duration time.Duration, pages int, err error)

	// OnBackup is called after a backup archive was written.
	OnBackup(duration time.Duration, bytes int64, err error)

	// OnMemory reports resident bytes against the budget after a sweep.
	OnMemory(current, budget int64)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnLoad(time.Duration, int64, error)   {}
func (NoopMetricsObserver) OnEvict(int64, error)                 {}
func (NoopMetricsObserver) OnSave(time.Duration, int, error)     {}
func (NoopMetricsObserver) OnBackup(time.Duration, int64, error) {}
func (NoopMetricsObserver) OnMemory(int64, int64)                {}

// BasicMetricsObserver counts events in memory.
// Useful for debugging and tests without external dependencies.
type BasicMetricsObserver struct {
	Loads        atomic.Int64
	LoadErrors   atomic.Int64
	LoadedBytes  atomic.Int64
	Evictions    atomic.Int64
	EvictErrors  atomic.Int64
	EvictedBytes atomic.Int64
	Saves        atomic.Int64
	SaveErrors   atomic.Int64
	Backups      atomic.Int64
	BackupBytes  atomic.Int64
	OverBudget   atomic.Int64
}

// OnLoad implements MetricsObserver.
func (b *BasicMetricsObserver) OnLoad(_ time.Duration, bytes int64, err error) {
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.Loads.Add(1)
	b.LoadedBytes.Add(bytes)
}

// OnEvict implements MetricsObserver.
func (b *BasicMetricsObserver) OnEvict(bytes int64, err error) {
	if err != nil {
		b.EvictErrors.Add(1)
		return
	}
	b.Evictions.Add(1)
	b.EvictedBytes.Add(bytes)
}

// OnSave implements MetricsObserver.
func (b *BasicMetricsObserver) OnSave(_ time.Duration, _ int, err error) {
	b.Saves.Add(1)
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// OnBackup implements MetricsObserver.
func (b *BasicMetricsObserver) OnBackup(_ time.Duration, bytes int64, err error) {
	if err != nil {
		return
	}
	b.Backups.Add(1)
	b.BackupBytes.Add(bytes)
}

// OnMemory implements MetricsObserver.
func (b *BasicMetricsObserver) OnMemory(current, budget int64) {
	if current > budget {
		b.OverBudget.Add(1)
	}
}
