// Package main is the entry point for the eqtrak server.
//
// eqtrak tracks equity portfolios and evaluates a catalog of system and
// user-defined metrics over their positions and transactions.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/di"
	"github.com/aristath/eqtrak/internal/server"
	"github.com/aristath/eqtrak/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Wires all dependencies via the DI container
// 3. Starts the HTTP server and the job scheduler
// 4. Reloads feature switches on SIGHUP
// 5. Shuts down gracefully on SIGINT/SIGTERM
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting eqtrak")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Config:    cfg,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		reload(container, log)
	}

	log.Info().Msg("Shutting down server...")
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// reload re-reads the environment and applies the system feature switches.
// Database paths and the listen port only change on restart.
func reload(container *di.Container, log zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Config reload failed, keeping current settings")
		return
	}
	container.FeatureGate.Reload(cfg)
	log.Info().Msg("Configuration reloaded")
}
