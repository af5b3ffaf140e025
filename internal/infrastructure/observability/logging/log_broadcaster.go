// Package logging provides the log broadcaster for real-time log streaming.
package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LogEntry represents a single log entry to be sent to the client.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	BatchID   string `json:"batchId,omitempty"`
	ItemID    string `json:"itemId,omitempty"`
}

// Client represents a single connected client (a browser tab) listening for logs.
type Client struct {
	id      string
	Channel chan []byte
	filters AppliedFilters
}

// AppliedFilters defines the filtering criteria for a client.
type AppliedFilters struct {
	Channel Channel    // "all" matches every channel
	Level   slog.Level // minimum level
}

func (f AppliedFilters) matches(entry LogEntry) bool {
	if f.Channel != "all" && f.Channel != Channel(entry.Channel) {
		return false
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(entry.Level)); err != nil {
		return true
	}
	return level >= f.Level
}

// LogBroadcaster manages clients and broadcasts log messages.
type LogBroadcaster struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan LogEntry
	mu         sync.RWMutex
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

var (
	broadcaster *LogBroadcaster
	once        sync.Once
)

// GetBroadcaster initializes and returns the singleton LogBroadcaster instance.
func GetBroadcaster() *LogBroadcaster {
	once.Do(func() {
		broadcaster = NewLogBroadcaster()
		go broadcaster.Run()
	})
	return broadcaster
}

// NewLogBroadcaster builds a broadcaster; the caller starts Run.
func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan LogEntry, 1000),
		logger:     slog.Default().With("component", "LogBroadcaster"),
		stop:       make(chan struct{}),
	}
}

// Run is the central loop that manages the broadcaster's state and operations.
func (b *LogBroadcaster) Run() {
	for {
		select {
		case <-b.stop:
			return
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Channel)
			}
			b.mu.Unlock()
		case entry := <-b.broadcast:
			b.distribute(entry)
		}
	}
}

func (b *LogBroadcaster) distribute(entry LogEntry) {
	message, err := json.Marshal(entry)
	if err != nil {
		b.logger.Error("Failed to marshal log entry for broadcast", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		if !client.filters.matches(entry) {
			continue
		}
		select {
		case client.Channel <- message:
		default:
			// slow client, drop
		}
	}
}

// SubmitLog queues an entry without blocking; entries are dropped under load.
func (b *LogBroadcaster) SubmitLog(entry LogEntry) {
	select {
	case b.broadcast <- entry:
	default:
	}
}

// NewClient creates a new client for the broadcaster.
func (b *LogBroadcaster) NewClient(filters AppliedFilters) *Client {
	return &Client{
		id:      fmt.Sprintf("%d", time.Now().UnixNano()),
		Channel: make(chan []byte, 100),
		filters: filters,
	}
}

// Shutdown stops the Run loop.
func (b *LogBroadcaster) Shutdown() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *LogBroadcaster) RegisterClient(client *Client) {
	b.register <- client
}

func (b *LogBroadcaster) UnregisterClient(client *Client) {
	b.unregister <- client
}
