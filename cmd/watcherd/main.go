// Package main provides the entry point for watcherd, a lightweight,
// self-hosted uptime monitoring engine.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"watcherd/internal/config"
	"watcherd/internal/hostapi/httpapi"
	"watcherd/internal/logger"
	"watcherd/internal/orchestrator"
)

// main is the entry point of watcherd.
//
// The startup sequence is as follows:
//  1. Load configuration
//  2. Initialize logger
//  3. Build and initialize the orchestrator (storage, scheduler, managers)
//  4. Optionally start the bundled HTTP adapter and metrics listener
//  5. Block until a shutdown signal, then drain everything gracefully
func main() {
	cfg := loadConfig()

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	logStartup(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandlers(cancel)

	orch := orchestrator.New(cfg, log.Logger)
	if err := orch.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}

	var httpServer *httpapi.Server
	var metricsServer *http.Server
	if cfg.Server.Enabled {
		httpServer = httpapi.NewServer(cfg.Server, orch, log.Logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				log.Error().Err(err).Msg("http adapter stopped")
			}
		}()
	}
	if cfg.Engine.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", orch.Metrics().Handler())
		metricsServer = &http.Server{Addr: cfg.Engine.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http adapter shutdown error")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics listener shutdown error")
		}
	}
	if err := orch.Shutdown(); err != nil {
		log.Error().Err(err).Msg("orchestrator shutdown error")
	}

	log.Info().Msg("shutdown complete")
}

// setupSignalHandlers configures OS signal handling to enable graceful
// shutdown of the application.
func setupSignalHandlers(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()
}

// loadConfig loads application configuration and terminates the program
// immediately if configuration cannot be loaded.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	return cfg
}

// logStartup logs essential startup metadata.
func logStartup(cfg *config.Config) {
	log.Info().
		Str("version", orchestrator.AppVersion).
		Str("log_level", cfg.Log.Level).
		Bool("server_enabled", cfg.Server.Enabled).
		Msg("starting watcherd")
}
