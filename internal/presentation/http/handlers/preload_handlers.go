package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/AtRiskMedia/preloader-go/internal/application/services"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// PreloadHandlers triggers preloads and streams their progress
type PreloadHandlers struct {
	preloadService *services.PreloadService
	sessionService *services.SessionService
	broadcaster    *messaging.ProgressBroadcaster
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
	upgrader       websocket.Upgrader
}

// NewPreloadHandlers creates preload handlers. An empty allowOrigins accepts
// websocket upgrades from any origin.
func NewPreloadHandlers(
	preloadService *services.PreloadService,
	sessionService *services.SessionService,
	broadcaster *messaging.ProgressBroadcaster,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
	allowOrigins []string,
) *PreloadHandlers {
	return &PreloadHandlers{
		preloadService: preloadService,
		sessionService: sessionService,
		broadcaster:    broadcaster,
		logger:         logger,
		perfTracker:    perfTracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowOrigins) == 0 {
					return true
				}
				return slices.Contains(allowOrigins, origin) || origin == "http://"+r.Host
			},
		},
	}
}

// RunPreload re-runs the startup preload and hands the batch to the session.
// Images already loaded are served from the dedup cache.
func (h *PreloadHandlers) RunPreload(c *gin.Context) {
	// A client hanging up must not cut the batch short.
	batch := h.preloadService.Init(context.WithoutCancel(c.Request.Context()))
	h.sessionService.Start(batch)

	h.logger.HTTP().Info("Preload triggered over HTTP", "batchId", batch.ID, "failed", len(batch.FailedIDs))
	c.JSON(http.StatusOK, h.sessionService.Describe())
}

// ProgressStream upgrades to a websocket and streams progress events.
// ?batch= restricts the stream to one batch.
func (h *PreloadHandlers) ProgressStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.HTTP().Warn("Websocket upgrade failed", "error", err)
		return
	}
	h.broadcaster.Serve(conn, c.Query("batch"))
}

// GetMetrics returns perf markers and alerts for a batch, the current one by
// default.
func (h *PreloadHandlers) GetMetrics(c *gin.Context) {
	batchID := c.DefaultQuery("batch", h.sessionService.Batch().ID)

	markers := h.perfTracker.GetMetrics(batchID)
	if markers == nil {
		markers = []performance.MarkerSnapshot{}
	}
	alerts := h.perfTracker.GetAlerts(batchID)
	if alerts == nil {
		alerts = []*performance.PerformanceAlert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"batchId": batchID,
		"markers": markers,
		"slowest": h.perfTracker.SlowestOperations(batchID, 5),
		"alerts":  alerts,
		"overall": h.perfTracker.GetOverallStats(),
		"cache":   h.preloadService.CacheStats(),
		"clients": h.broadcaster.ClientCount(),
	})
}
