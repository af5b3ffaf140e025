// Package performance provides performance tracking for preload batches and
// the items inside them.
package performance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker manages performance markers and provides metrics aggregation
type Tracker struct {
	markers    map[string]*Marker
	order      []string
	alerts     []*PerformanceAlert
	thresholds *AlertThresholds
	mu         sync.RWMutex
	started    time.Time
	config     *TrackerConfig
	seq        atomic.Uint64
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers   int  `json:"maxMarkers"`
	MaxAlerts    int  `json:"maxAlerts"`
	EnableAlerts bool `json:"enableAlerts"`
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:   10000,
		MaxAlerts:    500,
		EnableAlerts: true,
	}
}

// AlertThresholds defines performance thresholds for generating alerts
type AlertThresholds struct {
	SlowItemThreshold     time.Duration `json:"slowItemThreshold"`
	CriticalItemThreshold time.Duration `json:"criticalItemThreshold"`
	SlowBatchThreshold    time.Duration `json:"slowBatchThreshold"`
}

// DefaultAlertThresholds returns sensible default alert thresholds
func DefaultAlertThresholds() *AlertThresholds {
	return &AlertThresholds{
		SlowItemThreshold:     time.Second * 2,
		CriticalItemThreshold: time.Second * 5,
		SlowBatchThreshold:    time.Second * 10,
	}
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}

	return &Tracker{
		markers:    make(map[string]*Marker),
		alerts:     make([]*PerformanceAlert, 0),
		thresholds: DefaultAlertThresholds(),
		started:    time.Now(),
		config:     config,
	}
}

// SetThresholds replaces the alert thresholds.
func (t *Tracker) SetThresholds(thresholds *AlertThresholds) {
	t.mu.Lock()
	t.thresholds = thresholds
	t.mu.Unlock()
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, batchID string) *Marker {
	marker := &Marker{
		Operation: operation,
		BatchID:   batchID,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true,
	}

	markerID := fmt.Sprintf("%s_%s_%d", batchID, operation, t.seq.Add(1))

	t.mu.Lock()
	t.markers[markerID] = marker
	t.order = append(t.order, markerID)
	t.trimLocked()
	t.mu.Unlock()

	return marker
}

// CompleteOperation completes an operation and checks for alerts
func (t *Tracker) CompleteOperation(marker *Marker) {
	if marker == nil {
		return
	}
	marker.Complete()

	if t.config.EnableAlerts {
		t.checkForAlerts(marker.Snapshot())
	}
}

func (t *Tracker) checkForAlerts(marker MarkerSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, alert := range t.evaluateThresholds(marker) {
		t.alerts = append(t.alerts, alert)
	}
	if len(t.alerts) > t.config.MaxAlerts {
		t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
	}
}

// evaluateThresholds must be called with t.mu held.
func (t *Tracker) evaluateThresholds(marker MarkerSnapshot) []*PerformanceAlert {
	var alerts []*PerformanceAlert

	if strings.HasSuffix(marker.Operation, ":batch") {
		if marker.Duration > t.thresholds.SlowBatchThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.SlowBatchThreshold,
				"Preload batch exceeded slow threshold"))
		}
		return alerts
	}

	switch {
	case marker.Duration > t.thresholds.CriticalItemThreshold:
		alerts = append(alerts, t.createAlert(marker, AlertCritical, t.thresholds.CriticalItemThreshold,
			"Item load exceeded critical threshold"))
	case marker.Duration > t.thresholds.SlowItemThreshold:
		alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.SlowItemThreshold,
			"Item load exceeded slow threshold"))
	}
	return alerts
}

func (t *Tracker) createAlert(marker MarkerSnapshot, severity AlertSeverity, threshold time.Duration, message string) *PerformanceAlert {
	return &PerformanceAlert{
		ID:        fmt.Sprintf("alert_%d", t.seq.Add(1)),
		Timestamp: time.Now(),
		BatchID:   marker.BatchID,
		Severity:  severity,
		Operation: marker.Operation,
		Threshold: threshold,
		Actual:    marker.Duration,
		Message:   message,
		Metadata: map[string]any{
			"success":  marker.Success,
			"metadata": marker.Metadata,
		},
	}
}

// trimLocked drops the oldest markers past MaxMarkers.
func (t *Tracker) trimLocked() {
	if t.config.MaxMarkers <= 0 || len(t.order) <= t.config.MaxMarkers {
		return
	}
	excess := len(t.order) - t.config.MaxMarkers
	for _, id := range t.order[:excess] {
		delete(t.markers, id)
	}
	t.order = append([]string(nil), t.order[excess:]...)
}

// GetMetrics returns completed markers for a batch, oldest first
func (t *Tracker) GetMetrics(batchID string) []MarkerSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var metrics []MarkerSnapshot
	for _, id := range t.order {
		marker := t.markers[id]
		snap := marker.Snapshot()
		if snap.BatchID == batchID && snap.Completed {
			metrics = append(metrics, snap)
		}
	}
	return metrics
}

// GetAlerts returns performance alerts for a batch; "" returns all.
func (t *Tracker) GetAlerts(batchID string) []*PerformanceAlert {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var alerts []*PerformanceAlert
	for _, alert := range t.alerts {
		if batchID == "" || alert.BatchID == batchID {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// SlowestOperations returns the n slowest completed markers of a batch.
func (t *Tracker) SlowestOperations(batchID string, n int) []MarkerSnapshot {
	metrics := t.GetMetrics(batchID)
	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].Duration > metrics[j].Duration
	})
	if n > 0 && len(metrics) > n {
		metrics = metrics[:n]
	}
	return metrics
}

// GetOverallStats returns overall tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	activeCount := 0
	completedCount := 0
	for _, marker := range t.markers {
		if marker.Snapshot().Completed {
			completedCount++
		} else {
			activeCount++
		}
	}

	return map[string]any{
		"trackerUptime":       time.Since(t.started).String(),
		"totalMarkers":        len(t.markers),
		"activeOperations":    activeCount,
		"completedOperations": completedCount,
		"totalAlerts":         len(t.alerts),
	}
}
