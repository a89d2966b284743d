package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
)

// Wire initializes every dependency and returns the configured container.
// Order: databases, repositories, services, handlers, jobs. On partial
// failure the databases opened so far are closed before returning.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeRepositories(container, log)

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	InitializeHandlers(container, log)

	if err := RegisterJobs(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed")
	return container, nil
}
