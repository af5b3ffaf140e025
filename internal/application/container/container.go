// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/AtRiskMedia/preloader-go/internal/application/services"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/manifest"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/media"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/transport"
	"github.com/AtRiskMedia/preloader-go/pkg/config"
)

var _ services.ProgressPublisher = (*messaging.ProgressBroadcaster)(nil)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Config *config.Config

	// Preload Services
	PreloadService *services.PreloadService
	SessionService *services.SessionService

	// Infrastructure Dependencies
	Fetcher             *transport.Fetcher
	ImageProcessor      *media.ImageProcessor
	ImageCache          *caching.ImageCache
	ManifestLoader      *manifest.Loader
	ProgressBroadcaster *messaging.ProgressBroadcaster
	LogBroadcaster      *logging.LogBroadcaster

	// Observability
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// NewContainer creates and wires all singleton services. ctx bounds the
// lifetime of shared image loads and should live as long as the process.
func NewContainer(ctx context.Context, cfg *config.Config, logger *logging.ChanneledLogger) (*Container, error) {
	fetcher, err := transport.NewFetcher(transport.FetcherConfig{
		Client:       &http.Client{Timeout: cfg.HTTPClientTimeout},
		BaseURL:      cfg.AssetBaseURL,
		AppOrigin:    cfg.AppOrigin,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	processor := media.NewImageProcessor(cfg.MaxTextureSize)
	imageLoader := media.NewImageLoader(fetcher, processor)
	imageCache := caching.NewImageCache(ctx, imageLoader.Load)
	manifestLoader := manifest.NewLoader(fetcher, cfg.ManifestURL)
	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig())
	progress := messaging.NewProgressBroadcaster(logger)

	preloadService := services.NewPreloadService(
		imageCache,
		fetcher,
		manifestLoader,
		progress,
		logger,
		perfTracker,
		services.PreloadConfig{
			ItemTimeout:    cfg.ItemTimeout,
			MaxConcurrency: cfg.MaxConcurrency,
		},
	)

	return &Container{
		Config:              cfg,
		PreloadService:      preloadService,
		SessionService:      services.NewSessionService(logger, cfg.ExpectedAssetIDs),
		Fetcher:             fetcher,
		ImageProcessor:      processor,
		ImageCache:          imageCache,
		ManifestLoader:      manifestLoader,
		ProgressBroadcaster: progress,
		LogBroadcaster:      logging.GetBroadcaster(),
		Logger:              logger,
		PerfTracker:         perfTracker,
	}, nil
}
