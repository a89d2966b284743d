// Package main is the entry point for the hindsight analysis server.
//
// Startup order: configuration, logging, pending database restore, the
// DI container (databases through handlers), run queue, scheduler, HTTP
// server. Shutdown reverses it: drain HTTP, stop the scheduler, stop the
// run queue, close the databases.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/di"
	"github.com/aristath/hindsight/internal/reliability"
	"github.com/aristath/hindsight/internal/server"
	"github.com/aristath/hindsight/pkg/logger"
)

// shutdownTimeout bounds how long in-flight HTTP requests may drain.
const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Bool("dev_mode", cfg.DevMode).Msg("Starting hindsight")

	// A staged backup archive replaces the database files before they open.
	if applied, err := reliability.RunPendingRestore(cfg.DataDir, log); err != nil {
		log.Fatal().Err(err).Msg("Pending restore failed")
	} else if applied {
		log.Info().Msg("Databases restored from staged backup")
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Dependency wiring failed")
	}
	defer container.Close()

	if err := container.RunQueue.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start run queue")
	}
	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:     log,
		Host:    cfg.Host,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Modules: container.Modules(),
		Events:  server.NewEventsStreamHandler(container.Bus, cfg.DevMode, log),
		System:  server.NewSystemHandlers(container.Databases(), log),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown did not drain cleanly")
	}
	container.Scheduler.Stop()
	container.RunQueue.Stop()
	log.Info().Msg("Shutdown complete")
}
