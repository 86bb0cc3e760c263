package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCacheMetrics(t *testing.T) {
	// Metrics are package-level variables, automatically registered.
	// These calls just must not panic.

	t.Run("RecordFetch", func(t *testing.T) {
		RecordFetch("cache", 10*time.Millisecond)
		RecordFetch("network", time.Second)
	})

	t.Run("RecordCacheError", func(t *testing.T) {
		RecordCacheError("l1", "encode")
	})

	t.Run("UpdateL1CacheCapacity", func(t *testing.T) {
		UpdateL1CacheCapacity(1000000, 500000)
	})

	t.Run("UpdateCacheKeys", func(t *testing.T) {
		UpdateCacheKeys("l1", 1000)
	})
}

func TestRecordCacheHit(t *testing.T) {
	before := testutil.ToFloat64(CacheHits.WithLabelValues("l2"))
	RecordCacheHit("l2")
	assert.Equal(t, before+1, testutil.ToFloat64(CacheHits.WithLabelValues("l2")))
}

func TestRecordLifecycle(t *testing.T) {
	before := testutil.ToFloat64(LifecycleEvents.WithLabelValues("install", "failure"))
	RecordLifecycle("install", false)
	assert.Equal(t, before+1, testutil.ToFloat64(LifecycleEvents.WithLabelValues("install", "failure")))
}

func TestUpdateGenerations(t *testing.T) {
	UpdateGenerations(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(Generations))
}

func TestRecordCacheWrite(t *testing.T) {
	before := testutil.ToFloat64(CacheWrites.WithLabelValues("success"))
	RecordCacheWrite(true)
	assert.Equal(t, before+1, testutil.ToFloat64(CacheWrites.WithLabelValues("success")))
}
