// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/application/services"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/media"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

const (
	defaultPreviewWidth = 256
	maxPreviewWidth     = 4096
)

// AssetHandlers exposes the session's loaded assets
type AssetHandlers struct {
	sessionService *services.SessionService
	processor      *media.ImageProcessor
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewAssetHandlers creates asset handlers with injected dependencies
func NewAssetHandlers(sessionService *services.SessionService, processor *media.ImageProcessor, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AssetHandlers {
	return &AssetHandlers{
		sessionService: sessionService,
		processor:      processor,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// ListAssets returns the summary of the current batch
func (h *AssetHandlers) ListAssets(c *gin.Context) {
	summary := h.sessionService.Describe()
	h.logger.HTTP().Debug("Listed assets", "batchId", summary.BatchID, "count", len(summary.Assets))
	c.JSON(http.StatusOK, summary)
}

// GetAsset returns a JSON payload verbatim, or the metadata of an image
func (h *AssetHandlers) GetAsset(c *gin.Context) {
	id := c.Param("id")
	batch := h.sessionService.Batch()

	if !batch.Assets.Has(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not declared in manifest", "id": id})
		return
	}

	value := batch.Assets[id]
	if value == nil {
		h.failedDependency(c, id)
		return
	}

	if _, isImage := batch.Assets.Image(id); isImage {
		c.JSON(http.StatusOK, services.DescribeAsset(id, value))
		return
	}
	c.JSON(http.StatusOK, value)
}

// GetAssetPreview renders an image asset as a WebP thumbnail
func (h *AssetHandlers) GetAssetPreview(c *gin.Context) {
	id := c.Param("id")
	batch := h.sessionService.Batch()
	start := time.Now()
	marker := h.perfTracker.StartOperation("http:preview", batch.ID)
	defer h.perfTracker.CompleteOperation(marker)

	width := defaultPreviewWidth
	if raw := c.Query("width"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxPreviewWidth {
			marker.SetSuccess(false)
			c.JSON(http.StatusBadRequest, gin.H{"error": "width must be between 1 and 4096"})
			return
		}
		width = parsed
	}

	if !batch.Assets.Has(id) {
		marker.SetSuccess(false)
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not declared in manifest", "id": id})
		return
	}
	if batch.Assets[id] == nil {
		marker.SetSuccess(false)
		h.failedDependency(c, id)
		return
	}
	img, ok := batch.Assets.Image(id)
	if !ok {
		marker.SetSuccess(false)
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset is not an image", "id": id})
		return
	}

	data, err := h.processor.Preview(img.Image, width)
	if err != nil {
		marker.SetError(err)
		h.logger.LogError(logging.ChannelMedia, "preview", err, map[string]any{"itemId": id})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	marker.AddMetadata("bytes", len(data))
	h.logger.Media().Debug("Preview rendered", "itemId", id, "width", width, "bytes", len(data), "duration", time.Since(start))
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/webp", data)
}

func (h *AssetHandlers) failedDependency(c *gin.Context, id string) {
	response := gin.H{"error": "asset failed to load", "id": id}
	if result, ok := h.sessionService.Batch().Result(id); ok && result.Err != nil {
		response["details"] = result.Error()
	}
	c.JSON(http.StatusFailedDependency, response)
}
