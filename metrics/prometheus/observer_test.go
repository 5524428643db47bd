package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	o.OnLoad(time.Millisecond, 100, nil)
	o.OnLoad(time.Millisecond, 50, errors.New("boom"))
	o.OnEvict(64, nil)
	o.OnEvict(0, errors.New("boom"))
	o.OnSave(time.Millisecond, 3, nil)
	o.OnBackup(time.Millisecond, 1024, nil)
	o.OnMemory(2048, 1024)

	assert.InDelta(t, 100, testutil.ToFloat64(o.loadedBytes), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.evictions.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.evictions.WithLabelValues("error")), 0)
	assert.InDelta(t, 64, testutil.ToFloat64(o.evictedBytes), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(o.savedPages), 0)
	assert.InDelta(t, 1024, testutil.ToFloat64(o.backupBytes), 0)
	assert.InDelta(t, 2048, testutil.ToFloat64(o.memory), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.overBudget), 0)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["linkdb_operation_latency_seconds"])
	assert.True(t, names["linkdb_memory_budget_bytes"])
}

func TestObserver_NilRegisterer(t *testing.T) {
	o := NewObserver(nil)
	o.OnSave(time.Millisecond, 1, nil)
	assert.InDelta(t, 1, testutil.ToFloat64(o.savedPages), 0)
}
