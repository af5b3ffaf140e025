// Package logging provides the custom io.Writer for SSE log streaming.
package logging

import (
	"encoding/json"
	"log/slog"
	"time"
)

// SSEWriter is an io.Writer that forwards JSON log records to the
// LogBroadcaster.
type SSEWriter struct {
	broadcaster *LogBroadcaster
}

// NewSSEWriter creates a new writer that sends log data to the singleton broadcaster.
func NewSSEWriter() *SSEWriter {
	return &SSEWriter{broadcaster: GetBroadcaster()}
}

// Write never fails; unparsable records are reported as a system error entry.
func (w *SSEWriter) Write(p []byte) (n int, err error) {
	var rawLog map[string]any
	if err := json.Unmarshal(p, &rawLog); err != nil {
		w.broadcaster.SubmitLog(LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     slog.LevelError.String(),
			Channel:   string(ChannelSystem),
			Message:   "sse_writer: failed to parse incoming log message",
		})
		return len(p), nil
	}

	w.broadcaster.SubmitLog(LogEntry{
		Timestamp: getString(rawLog, "time"),
		Level:     getString(rawLog, "level"),
		Channel:   getString(rawLog, "channel"),
		Message:   getString(rawLog, "msg"),
		BatchID:   getString(rawLog, "batchId"),
		ItemID:    getString(rawLog, "itemId"),
	})

	return len(p), nil
}

func getString(data map[string]any, key string) string {
	if val, ok := data[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return ""
}
