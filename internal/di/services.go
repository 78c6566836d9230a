package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/clients/yahoo"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/indicators"
	"github.com/aristath/portfolio-analytics/internal/modules/optimization"
	"github.com/aristath/portfolio-analytics/internal/modules/returns"
	"github.com/aristath/portfolio-analytics/internal/reliability"
)

// InitializeServices builds the provider, cache and analytics services.
// A nil provider selects the Yahoo Finance client.
func InitializeServices(container *Container, provider marketdata.Provider, log zerolog.Logger) error {
	cfg := container.Config

	if provider == nil {
		container.YahooClient = yahoo.NewClient(yahoo.DefaultBaseURL, cfg.Fetch.Timeout, log)
		provider = container.YahooClient
	}

	container.MarketData = marketdata.NewCache(provider, container.Store, marketdata.Config{
		TTL:        cfg.Cache.TTL,
		MaxWorkers: cfg.Fetch.MaxWorkers,
		Retry: marketdata.RetryPolicy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			Delay:       cfg.Fetch.RetryDelay,
		},
	}, log)

	container.Pipeline = returns.NewPipeline(log)
	container.Indicators = indicators.NewEngine(container.MarketData, log)

	var views optimization.Views
	if cfg.Analytics.ViewsFile != "" {
		loaded, err := optimization.LoadViews(cfg.Analytics.ViewsFile)
		if err != nil {
			return fmt.Errorf("failed to load Black-Litterman views: %w", err)
		}
		views = loaded
		log.Info().Int("views", len(views)).Str("file", cfg.Analytics.ViewsFile).Msg("Loaded Black-Litterman views")
	}

	container.Optimization = optimization.NewService(container.MarketData, container.Pipeline, optimization.ServiceConfig{
		BlackLitterman: optimization.BlackLittermanConfig{
			ProxyTicker: cfg.Analytics.MarketProxyTicker,
			ProxyCap:    cfg.Analytics.MarketProxyCap,
			Tau:         optimization.DefaultTau,
		},
		Views: views,
	}, log)

	if cfg.Backup.Enabled() && container.CacheDB != nil {
		store, err := reliability.NewS3Store(context.Background(), reliability.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize backup storage: %w", err)
		}
		container.Backup = reliability.NewCacheBackupService(
			container.CacheDB, store, cfg.Backup.Prefix, cfg.Backup.Retain, cfg.DataDir, log,
		)
	}

	return nil
}
