// Package messaging fans preload progress out to websocket clients.
package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ProgressClient is a single connected loading-screen client.
type ProgressClient struct {
	Conn    *websocket.Conn
	BatchID string // "" receives every batch
	Send    chan []byte
}

// NewProgressClient creates a client with a buffered send queue.
func NewProgressClient(conn *websocket.Conn, batchID string) *ProgressClient {
	return &ProgressClient{Conn: conn, BatchID: batchID, Send: make(chan []byte, 64)}
}

// ProgressBroadcaster fans preload progress events out to websocket clients.
type ProgressBroadcaster struct {
	clients    map[*ProgressClient]bool
	register   chan *ProgressClient
	unregister chan *ProgressClient
	events     chan assets.ProgressEvent
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	logger     *logging.ChanneledLogger
}

// NewProgressBroadcaster creates a new broadcaster instance.
func NewProgressBroadcaster(logger *logging.ChanneledLogger) *ProgressBroadcaster {
	return &ProgressBroadcaster{
		clients:    make(map[*ProgressClient]bool),
		register:   make(chan *ProgressClient),
		unregister: make(chan *ProgressClient),
		events:     make(chan assets.ProgressEvent, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the broadcaster's main loop. This should be run as a goroutine.
func (b *ProgressBroadcaster) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			b.logger.HTTP().Debug("Progress client registered", "batchId", client.BatchID)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			b.logger.HTTP().Debug("Progress client unregistered", "batchId", client.BatchID)

		case event := <-b.events:
			b.broadcast(event)

		case <-b.done:
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			return
		}
	}
}

func (b *ProgressBroadcaster) broadcast(event assets.ProgressEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		b.logger.HTTP().Error("Failed to marshal progress event", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if client.BatchID != "" && client.BatchID != event.BatchID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			b.logger.HTTP().Warn("Progress client too slow, event dropped", "batchId", event.BatchID)
		}
	}
}

// Publish queues an event without blocking; events are dropped when the
// queue is full or the broadcaster has stopped.
func (b *ProgressBroadcaster) Publish(event assets.ProgressEvent) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- event:
	default:
		b.logger.HTTP().Warn("Progress queue full, event dropped", "batchId", event.BatchID)
	}
}

// Register queues a client for registration.
func (b *ProgressBroadcaster) Register(client *ProgressClient) {
	select {
	case b.register <- client:
	case <-b.done:
	}
}

// Unregister queues a client for unregistration.
func (b *ProgressBroadcaster) Unregister(client *ProgressClient) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *ProgressBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Shutdown stops Run and disconnects every client.
func (b *ProgressBroadcaster) Shutdown() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Serve pumps events to conn until the client goes away. It blocks.
func (b *ProgressBroadcaster) Serve(conn *websocket.Conn, batchID string) {
	client := NewProgressClient(conn, batchID)
	b.Register(client)

	go b.writePump(client)
	b.readPump(client)
}

// readPump drains client frames so control messages are processed.
func (b *ProgressBroadcaster) readPump(client *ProgressClient) {
	defer func() {
		b.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(512)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *ProgressBroadcaster) writePump(client *ProgressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
