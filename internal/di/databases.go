package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
)

// InitializeDatabases opens the cache store for the configured backend.
// The SQLite backend also applies the embedded schema.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		container.Store = marketdata.NewMemoryStore()
		log.Info().Msg("Using in-memory market data cache")
		return container, nil

	case config.CacheBackendSQLite, "":
		cacheDB, err := database.New(database.Config{
			Path:    cfg.CachePath(),
			Profile: database.ProfileCache, // Maximum speed for ephemeral data
			Name:    "cache",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache database: %w", err)
		}
		if err := cacheDB.Migrate(); err != nil {
			cacheDB.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", cacheDB.Name(), err)
		}
		container.CacheDB = cacheDB
		container.Store = marketdata.NewSQLiteStore(cacheDB.Conn())
		log.Info().Str("path", cacheDB.Path()).Msg("Cache database initialized and schema applied")
		return container, nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
