package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open the cache store
// 2. Initialize services
// 3. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	return WireWithProvider(cfg, nil, log)
}

// WireWithProvider is Wire with an explicit market data provider.
func WireWithProvider(cfg *config.Config, provider marketdata.Provider, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(container, provider, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
