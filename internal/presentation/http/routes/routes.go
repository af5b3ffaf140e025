// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/AtRiskMedia/preloader-go/internal/application/container"
	"github.com/AtRiskMedia/preloader-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/preloader-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware(container.Config.CORSAllowOrigins))

	// Initialize handlers
	assetHandlers := handlers.NewAssetHandlers(container.SessionService, container.ImageProcessor, container.Logger, container.PerfTracker)
	preloadHandlers := handlers.NewPreloadHandlers(
		container.PreloadService,
		container.SessionService,
		container.ProgressBroadcaster,
		container.Logger,
		container.PerfTracker,
		container.Config.CORSAllowOrigins,
	)
	sysopHandlers := handlers.NewSysOpHandlers(container.Logger, container.LogBroadcaster)

	api := r.Group("/api/v1")
	{
		api.GET("/assets", assetHandlers.ListAssets)
		api.GET("/assets/:id", assetHandlers.GetAsset)
		api.GET("/assets/:id/preview", assetHandlers.GetAssetPreview)

		api.POST("/preload", preloadHandlers.RunPreload)
		api.GET("/preload/ws", preloadHandlers.ProgressStream)
		api.GET("/preload/metrics", preloadHandlers.GetMetrics)
	}

	sysopAPI := r.Group("/api/sysop")
	{
		sysopAPI.GET("/logs/levels", sysopHandlers.GetLogLevels)
		sysopAPI.POST("/logs/levels", sysopHandlers.SetLogLevel)
	}

	// Log streaming is a special case and remains at top level
	r.GET("/sysop-logs/stream", sysopHandlers.StreamLogs)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"batchId": container.SessionService.Batch().ID,
		})
	})

	// Everything else comes from the static directory, which is where the
	// manifest and the assets it references live during development.
	staticFS := http.Dir(container.Config.StaticDir)
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.FileFromFS(c.Request.URL.Path, staticFS)
	})

	return r
}
