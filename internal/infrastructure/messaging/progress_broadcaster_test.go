package messaging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/domain/entities/assets"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroadcaster(t *testing.T) (*ProgressBroadcaster, *httptest.Server) {
	t.Helper()
	b := NewProgressBroadcaster(logging.NewDiscardLogger())
	go b.Run()
	t.Cleanup(b.Shutdown)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.Serve(conn, r.URL.Query().Get("batch"))
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, b *ProgressBroadcaster, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestPublishReachesClients(t *testing.T) {
	b, srv := startBroadcaster(t)
	conn := dial(t, srv, "")
	waitForClients(t, b, 1)

	b.Publish(assets.ProgressEvent{BatchID: "01B", Type: assets.ProgressItemSettled, ItemID: "a", Settled: 1, Total: 2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got assets.ProgressEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "01B", got.BatchID)
	assert.Equal(t, "a", got.ItemID)
	assert.Equal(t, 2, got.Total)
}

func TestClientsFilterByBatch(t *testing.T) {
	b, srv := startBroadcaster(t)
	conn := dial(t, srv, "?batch=wanted")
	waitForClients(t, b, 1)

	b.Publish(assets.ProgressEvent{BatchID: "other", Type: assets.ProgressBatchDone})
	b.Publish(assets.ProgressEvent{BatchID: "wanted", Type: assets.ProgressBatchDone, Total: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got assets.ProgressEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "wanted", got.BatchID)
	assert.Equal(t, 3, got.Total)
}

func TestDisconnectUnregisters(t *testing.T) {
	b, srv := startBroadcaster(t)
	conn := dial(t, srv, "")
	waitForClients(t, b, 1)

	conn.Close()
	waitForClients(t, b, 0)
}

func TestPublishAfterShutdownIsDropped(t *testing.T) {
	b := NewProgressBroadcaster(logging.NewDiscardLogger())
	b.Shutdown()

	assert.NotPanics(t, func() {
		b.Publish(assets.ProgressEvent{BatchID: "x"})
		b.Register(NewProgressClient(nil, ""))
	})
	assert.Equal(t, 0, b.ClientCount())
}
