package performance

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsCompletedMarkers(t *testing.T) {
	tracker := NewTracker(nil)

	batch := tracker.StartOperation("preload:batch", "b1")
	item := tracker.StartOperation("preload:json", "b1")
	item.SetError(errors.New("404"))
	tracker.CompleteOperation(item)

	metrics := tracker.GetMetrics("b1")
	require.Len(t, metrics, 1)
	assert.Equal(t, "preload:json", metrics[0].Operation)
	assert.False(t, metrics[0].Success)
	assert.Equal(t, "404", metrics[0].Error)

	tracker.CompleteOperation(batch)
	assert.Len(t, tracker.GetMetrics("b1"), 2)
	assert.Empty(t, tracker.GetMetrics("other"))
}

func TestCompleteIsIdempotent(t *testing.T) {
	m := &Marker{StartTime: time.Now().Add(-time.Second)}
	m.Complete()
	first := m.Snapshot().EndTime
	m.Complete()
	assert.Equal(t, first, m.Snapshot().EndTime)
}

func TestCacheCountersAreConcurrencySafe(t *testing.T) {
	m := &Marker{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); m.AddCacheHit() }()
		go func() { defer wg.Done(); m.AddCacheMiss() }()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, 50, snap.CacheHits)
	assert.Equal(t, 50, snap.CacheMisses)
	assert.InDelta(t, 0.5, m.GetCacheHitRatio(), 0.0001)
}

func TestSlowItemRaisesAlert(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.SetThresholds(&AlertThresholds{
		SlowItemThreshold:     time.Nanosecond,
		CriticalItemThreshold: time.Hour,
		SlowBatchThreshold:    time.Hour,
	})

	item := tracker.StartOperation("preload:image", "b1")
	time.Sleep(time.Millisecond)
	tracker.CompleteOperation(item)

	batch := tracker.StartOperation("preload:batch", "b1")
	tracker.CompleteOperation(batch)

	alerts := tracker.GetAlerts("b1")
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertWarning, alerts[0].Severity)
	assert.Equal(t, "preload:image", alerts[0].Operation)
	assert.Len(t, tracker.GetAlerts(""), 1)
}

func TestTrackerTrimsOldestMarkers(t *testing.T) {
	tracker := NewTracker(&TrackerConfig{MaxMarkers: 2, MaxAlerts: 10})
	for _, op := range []string{"a", "b", "c"} {
		tracker.CompleteOperation(tracker.StartOperation(op, "b1"))
	}

	metrics := tracker.GetMetrics("b1")
	require.Len(t, metrics, 2)
	assert.Equal(t, "b", metrics[0].Operation)
	assert.Equal(t, "c", metrics[1].Operation)
}

func TestSlowestOperations(t *testing.T) {
	tracker := NewTracker(nil)
	fast := tracker.StartOperation("fast", "b1")
	tracker.CompleteOperation(fast)
	slow := tracker.StartOperation("slow", "b1")
	time.Sleep(2 * time.Millisecond)
	tracker.CompleteOperation(slow)

	top := tracker.SlowestOperations("b1", 1)
	require.Len(t, top, 1)
	assert.Equal(t, "slow", top[0].Operation)
}
