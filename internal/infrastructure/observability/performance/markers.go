// Package performance provides performance monitoring data structures and utilities
// for tracking preload operations.
package performance

import (
	"sync"
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation   string         `json:"operation"`       // e.g., "preload:batch", "preload:image"
	BatchID     string         `json:"batchId"`         // Batch the operation belongs to
	StartTime   time.Time      `json:"startTime"`       // When the operation started
	EndTime     time.Time      `json:"endTime"`         // When the operation completed
	Duration    time.Duration  `json:"duration"`        // Total operation duration
	Success     bool           `json:"success"`         // Whether the operation completed successfully
	Error       string         `json:"error,omitempty"` // Error message if operation failed
	Metadata    map[string]any `json:"metadata"`        // Additional operation-specific data
	CacheHits   int            `json:"cacheHits"`       // Dedup cache hits during operation
	CacheMisses int            `json:"cacheMisses"`     // Dedup cache misses during operation
	Completed   bool           `json:"completed"`       // Whether Complete() has been called

	mu sync.Mutex
}

// Complete marks the operation as finished and calculates final metrics
func (m *Marker) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Completed {
		return
	}

	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.mu.Lock()
	m.Success = success
	m.mu.Unlock()
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.Error = err.Error()
	m.Success = false
	m.mu.Unlock()
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

func (m *Marker) AddCacheHit() {
	m.mu.Lock()
	m.CacheHits++
	m.mu.Unlock()
}

func (m *Marker) AddCacheMiss() {
	m.mu.Lock()
	m.CacheMisses++
	m.mu.Unlock()
}

// GetCacheHitRatio returns the cache hit ratio (0.0 to 1.0)
func (m *Marker) GetCacheHitRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return 0.0
	}
	return float64(m.CacheHits) / float64(total)
}

// MarkerSnapshot is a point-in-time copy of a Marker.
type MarkerSnapshot struct {
	Operation   string         `json:"operation"`
	BatchID     string         `json:"batchId"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     time.Time      `json:"endTime"`
	Duration    time.Duration  `json:"duration"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CacheHits   int            `json:"cacheHits"`
	CacheMisses int            `json:"cacheMisses"`
	Completed   bool           `json:"completed"`
}

// Snapshot returns a copy safe to read while the marker is still in use.
func (m *Marker) Snapshot() MarkerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	metadata := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		metadata[k] = v
	}
	return MarkerSnapshot{
		Operation:   m.Operation,
		BatchID:     m.BatchID,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		Duration:    m.Duration,
		Success:     m.Success,
		Error:       m.Error,
		Metadata:    metadata,
		CacheHits:   m.CacheHits,
		CacheMisses: m.CacheMisses,
		Completed:   m.Completed,
	}
}

// PerformanceAlert represents a performance threshold violation
type PerformanceAlert struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	BatchID   string         `json:"batchId"`
	Severity  AlertSeverity  `json:"severity"`
	Operation string         `json:"operation"`
	Threshold time.Duration  `json:"threshold"`
	Actual    time.Duration  `json:"actual"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
}

// AlertSeverity represents the severity level of a performance alert
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)
