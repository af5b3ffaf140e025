package handlers

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamLogsOutlivesWriteTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	broadcaster := logging.NewLogBroadcaster()
	go broadcaster.Run()
	t.Cleanup(broadcaster.Shutdown)

	h := NewSysOpHandlers(logging.NewDiscardLogger(), broadcaster)
	router := gin.New()
	router.GET("/sysop-logs/stream", h.StreamLogs)

	srv := httptest.NewUnstartedServer(router)
	srv.Config.WriteTimeout = 100 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/sysop-logs/stream?channel=preload")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "connection established")

	time.Sleep(3 * srv.Config.WriteTimeout)
	broadcaster.SubmitLog(logging.LogEntry{
		Channel: string(logging.ChannelPreload),
		Level:   "INFO",
		Message: "late entry",
		ItemID:  "hero",
	})

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	assert.Contains(t, line, `"message":"late entry"`)
	assert.Contains(t, line, `"itemId":"hero"`)
}
