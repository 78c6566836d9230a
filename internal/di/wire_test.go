package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/domain"
)

type staticProvider struct{}

func (staticProvider) History(_ context.Context, _, _, _ string) ([]domain.PriceBar, error) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return []domain.PriceBar{{Date: day, Close: 100}, {Date: day.AddDate(0, 0, 1), Close: 101}}, nil
}

func (staticProvider) Fundamentals(_ context.Context, _ string) (domain.Fundamentals, error) {
	return domain.Fundamentals{}, nil
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Analytics: config.AnalyticsConfig{
			HistoryYears:      5,
			RiskFreeRate:      0.04,
			BLRiskFreeRate:    0.001,
			MarketProxyTicker: "SPY",
			MarketProxyCap:    45e12,
		},
		Fetch: config.FetchConfig{
			MaxAttempts: 3,
			RetryDelay:  time.Millisecond,
			MaxWorkers:  2,
			Timeout:     time.Second,
		},
		Cache: config.CacheConfig{
			Backend:         backend,
			TTL:             time.Hour,
			CleanupSchedule: "@hourly",
		},
		Backup: config.BackupConfig{
			Schedule: "@daily",
			Prefix:   "analytics",
			Region:   "auto",
			Retain:   7,
		},
	}
}

func TestWire_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t, config.CacheBackendSQLite)

	container, err := WireWithProvider(cfg, staticProvider{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.NotNil(t, container.CacheDB)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "market_data.db"))
	assert.NotNil(t, container.MarketData)
	assert.NotNil(t, container.Indicators)
	assert.NotNil(t, container.Optimization)
	assert.NoError(t, container.Optimization.Available())
	assert.Nil(t, container.YahooClient)
	assert.Nil(t, container.Backup)

	jobs := container.Jobs.All()
	assert.Contains(t, jobs, "market_data_cache_cleanup")
	assert.NotContains(t, jobs, "cache_backup")
	assert.Len(t, container.Scheduler.Entries(), 1)

	series, err := container.MarketData.GetPriceHistory(context.Background(), "aapl", "2024-01-01", "2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", series.Ticker)
}

func TestWire_MemoryBackendUsesYahooByDefault(t *testing.T) {
	cfg := testConfig(t, config.CacheBackendMemory)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Nil(t, container.CacheDB)
	assert.NotNil(t, container.YahooClient)
	assert.NoError(t, container.Close())
}

func TestWire_BackupJobWhenBucketConfigured(t *testing.T) {
	cfg := testConfig(t, config.CacheBackendSQLite)
	cfg.Backup.Bucket = "snapshots"
	cfg.Backup.Endpoint = "http://127.0.0.1:9000"
	cfg.Backup.AccessKey = "key"
	cfg.Backup.SecretKey = "secret"

	container, err := WireWithProvider(cfg, staticProvider{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.NotNil(t, container.Backup)
	assert.Contains(t, container.Jobs.All(), "cache_backup")
	assert.Len(t, container.Scheduler.Entries(), 2)
}

func TestWire_LoadsViewsFile(t *testing.T) {
	cfg := testConfig(t, config.CacheBackendMemory)
	path := filepath.Join(cfg.DataDir, "views.yaml")
	require.NoError(t, os.WriteFile(path, []byte("views:\n  - weights: {aapl: 1}\n    return: 0.1\n"), 0644))
	cfg.Analytics.ViewsFile = path

	_, err := WireWithProvider(cfg, staticProvider{}, zerolog.Nop())
	assert.NoError(t, err)
}

func TestWire_Errors(t *testing.T) {
	t.Run("invalid views file", func(t *testing.T) {
		cfg := testConfig(t, config.CacheBackendMemory)
		cfg.Analytics.ViewsFile = filepath.Join(cfg.DataDir, "missing.yaml")

		_, err := WireWithProvider(cfg, staticProvider{}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig(t, config.CacheBackendMemory)
		cfg.Cache.CleanupSchedule = "whenever"

		_, err := WireWithProvider(cfg, staticProvider{}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t, "redis")

		_, err := WireWithProvider(cfg, staticProvider{}, zerolog.Nop())
		assert.Error(t, err)
	})
}
