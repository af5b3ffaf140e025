// Package startup prepares the application server
package startup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/preloader-go/internal/application/container"
	"github.com/AtRiskMedia/preloader-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/preloader-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/preloader-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence: config, logging,
// container, HTTP server, preload, session hand-off, then waits for a
// shutdown signal.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Configuration
	log.Println("Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 2: Channeled logging
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.OutputToFile = cfg.LogToFile
	loggerConfig.LogDirectory = cfg.LogDirectory
	loggerConfig.JSONFormat = cfg.LogJSON
	loggerConfig.StreamToClients = cfg.Serve
	loggerConfig.DefaultLevel = logging.ParseLevel(cfg.LogLevel)

	logger, err := logging.NewChanneledLogger(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized", "level", cfg.LogLevel, "json", cfg.LogJSON)

	// Step 3: Dependency injection container
	phaseStart := time.Now()
	appContainer, err := container.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	logger.LogStartupPhase("container", time.Since(phaseStart), true, map[string]any{
		"manifestUrl":  cfg.ManifestURL,
		"assetBaseUrl": cfg.AssetBaseURL,
	})

	if !cfg.Serve {
		return runOnce(ctx, appContainer)
	}

	// Step 4: Signals are registered before anything that can block
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(gracefulShutdown)

	// Step 5: Start HTTP server first so a local manifest is reachable
	phaseStart = time.Now()
	go appContainer.ProgressBroadcaster.Run()
	defer appContainer.ProgressBroadcaster.Shutdown()

	httpServer := server.New(appContainer)
	listener, err := httpServer.Listen()
	if err != nil {
		return err
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()
	logger.LogStartupPhase("http", time.Since(phaseStart), true, map[string]any{"port": cfg.Port, "staticDir": cfg.StaticDir})

	// Step 6: Preload in the background and wait for a shutdown signal
	sig := runUntilSignal(ctx, cancelBackgroundTasks, appContainer, gracefulShutdown, preloadGracePeriod)
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...", "signal", sig.String())

	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}
	appContainer.LogBroadcaster.Shutdown()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

const preloadGracePeriod = 5 * time.Second

// runUntilSignal preloads and hands the batch to the session in the
// background, then blocks until a signal arrives. On a signal it cancels ctx,
// which aborts in-flight loads, and waits up to grace for the preload to
// settle.
func runUntilSignal(ctx context.Context, cancel context.CancelFunc, appContainer *container.Container, signals <-chan os.Signal, grace time.Duration) os.Signal {
	logger := appContainer.Logger
	preloaded := make(chan struct{})

	go func() {
		defer close(preloaded)
		start := time.Now()
		batch := appContainer.PreloadService.Init(ctx)
		appContainer.SessionService.Start(batch)
		logger.LogStartupPhase("preload", time.Since(start), !batch.Degraded(), map[string]any{
			"batchId": batch.ID,
			"assets":  len(batch.Assets),
			"failed":  len(batch.FailedIDs),
		})
		logger.Startup().Info("Application startup complete", "port", appContainer.Config.Port)
	}()

	sig := <-signals
	cancel()

	select {
	case <-preloaded:
	case <-time.After(grace):
		logger.Shutdown().Warn("Startup preload did not settle before shutdown", "grace", grace)
	}
	return sig
}

// runOnce preloads against an external manifest, prints the summary and
// returns.
func runOnce(ctx context.Context, appContainer *container.Container) error {
	batch := appContainer.PreloadService.Init(ctx)
	appContainer.SessionService.Start(batch)

	out, err := json.MarshalIndent(appContainer.SessionService.Describe(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// setupLogging configures the standard logger used before channeled logging
// is available
func setupLogging() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
