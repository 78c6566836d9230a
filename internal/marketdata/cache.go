package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// Provider is the external market data source.
type Provider interface {
	// History returns daily bars in [start, end). An empty slice with a nil
	// error means the provider has no data for the request.
	History(ctx context.Context, ticker, start, end string) ([]domain.PriceBar, error)

	// Fundamentals returns EPS, beta and market cap; absent fields are nil.
	Fundamentals(ctx context.Context, ticker string) (domain.Fundamentals, error)
}

// Config controls cache behaviour
type Config struct {
	TTL        time.Duration
	MaxWorkers int
	Retry      RetryPolicy
}

// DefaultConfig returns a 1h TTL, 5 batch workers and the default retry policy.
func DefaultConfig() Config {
	return Config{
		TTL:        time.Hour,
		MaxWorkers: 5,
		Retry:      DefaultRetryPolicy(),
	}
}

// Cache fetches from a Provider and memoizes successful results in a Store.
type Cache struct {
	provider Provider
	store    Store
	cfg      Config
	group    singleflight.Group
	log      zerolog.Logger
}

// NewCache creates a market data cache.
func NewCache(provider Provider, store Store, cfg Config, log zerolog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return &Cache{
		provider: provider,
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "market_data_cache").Logger(),
	}
}

func historyKey(ticker, start, end string) string {
	return "history:" + ticker + ":" + start + ":" + end
}

func fundamentalsKey(ticker string) string {
	return "fundamentals:" + ticker
}

// GetPriceHistory returns the history for ticker in [start, end), from the
// store when fresh, otherwise from the provider.
func (c *Cache) GetPriceHistory(ctx context.Context, ticker, start, end string) (domain.PriceSeries, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	if err := ValidateRange(start, end); err != nil {
		return domain.PriceSeries{}, err
	}

	key := historyKey(ticker, start, end)

	var series domain.PriceSeries
	if c.load(ctx, key, &series) {
		// msgpack restores timestamps in local time
		for i := range series.Bars {
			series.Bars[i].Date = series.Bars[i].Date.UTC()
		}
		return series, nil
	}

	v, err := c.shared(ctx, key, func(fetchCtx context.Context) (interface{}, error) {
		bars, err := c.fetchHistory(fetchCtx, ticker, start, end)
		if err != nil {
			return nil, err
		}
		s := domain.PriceSeries{Ticker: ticker, Bars: bars}
		c.save(fetchCtx, key, s)
		return s, nil
	})
	if err != nil {
		return domain.PriceSeries{}, err
	}
	return v.(domain.PriceSeries), nil
}

// GetFundamentals returns all fundamental fields for ticker.
func (c *Cache) GetFundamentals(ctx context.Context, ticker string) (domain.Fundamentals, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return domain.Fundamentals{}, err
	}

	key := fundamentalsKey(ticker)

	var f domain.Fundamentals
	if c.load(ctx, key, &f) {
		return f, nil
	}

	v, err := c.shared(ctx, key, func(fetchCtx context.Context) (interface{}, error) {
		var fetched domain.Fundamentals
		err := c.withRetry(fetchCtx, ticker, func() error {
			var err error
			fetched, err = c.provider.Fundamentals(fetchCtx, ticker)
			return err
		})
		if err != nil {
			return nil, err
		}
		c.save(fetchCtx, key, fetched)
		return fetched, nil
	})
	if err != nil {
		return domain.Fundamentals{}, err
	}
	return v.(domain.Fundamentals), nil
}

// GetFundamental returns one field for ticker, or nil when the provider has none.
func (c *Cache) GetFundamental(ctx context.Context, ticker string, field domain.FundamentalField) (*float64, error) {
	if _, ok := domain.ParseFundamentalField(string(field)); !ok {
		return nil, fmt.Errorf("%w: unknown fundamental field %q", domain.ErrInvalidInput, field)
	}
	f, err := c.GetFundamentals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return f.Field(field), nil
}

// GetPriceHistoryBatch fetches tickers in parallel on a bounded pool and
// aligns their closes. Tickers that fail are logged and omitted.
func (c *Cache) GetPriceHistoryBatch(ctx context.Context, tickers []string, start, end string) (domain.PriceMatrix, error) {
	tickers, err := NormalizeTickers(tickers)
	if err != nil {
		return domain.PriceMatrix{}, err
	}
	if err := ValidateRange(start, end); err != nil {
		return domain.PriceMatrix{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.PriceMatrix{}, err
	}

	results := make([]domain.PriceSeries, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(c.cfg.MaxWorkers, len(tickers)))

	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			series, err := c.GetPriceHistory(gctx, ticker, start, end)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn().Err(err).Str("ticker", ticker).Msg("Omitting ticker from batch")
				return nil
			}
			results[i] = series
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.PriceMatrix{}, err
	}

	matrix := domain.BuildPriceMatrix(results)

	c.log.Debug().
		Int("requested", len(tickers)).
		Int("returned", len(matrix.Tickers)).
		Int("rows", matrix.Rows()).
		Msg("Built price matrix")

	return matrix, nil
}

// GetFundamentalsBatch returns field for every ticker that has it.
func (c *Cache) GetFundamentalsBatch(ctx context.Context, tickers []string, field domain.FundamentalField) (map[string]float64, error) {
	tickers, err := NormalizeTickers(tickers)
	if err != nil {
		return nil, err
	}

	values := make([]*float64, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(c.cfg.MaxWorkers, len(tickers)))

	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			v, err := c.GetFundamental(gctx, ticker, field)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn().Err(err).Str("ticker", ticker).Str("field", string(field)).Msg("Fundamental unavailable")
				return nil
			}
			values[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(tickers))
	for i, v := range values {
		if v != nil {
			out[tickers[i]] = *v
		}
	}
	return out, nil
}

// shared runs fetch once per key across concurrent callers. The fetch is
// detached from any single caller's cancellation and bounded by the retry
// policy; each caller stops waiting when its own ctx is done.
func (c *Cache) shared(ctx context.Context, key string, fetch func(context.Context) (interface{}, error)) (interface{}, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fetch(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug().Str("key", key).Msg("Coalesced concurrent fetch")
		}
		return res.Val, nil
	}
}

// fetchHistory applies the retry policy to transient failures and retries an
// empty answer once before reporting NoDataError.
func (c *Cache) fetchHistory(ctx context.Context, ticker, start, end string) ([]domain.PriceBar, error) {
	emptyRetried := false
	for {
		var bars []domain.PriceBar
		err := c.withRetry(ctx, ticker, func() error {
			var err error
			bars, err = c.provider.History(ctx, ticker, start, end)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(bars) > 0 {
			return domain.SortBars(bars), nil
		}
		if emptyRetried {
			return nil, &domain.NoDataError{Ticker: ticker, Start: start, End: end}
		}
		emptyRetried = true

		wait := c.cfg.Retry.wait(1)
		c.log.Warn().Str("ticker", ticker).Dur("wait", wait).Msg("Empty history, retrying once")
		if err := c.cfg.Retry.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// withRetry runs call until it succeeds, fails permanently, or exhausts the
// attempt budget, in which case it returns a ConnectivityError.
func (c *Cache) withRetry(ctx context.Context, ticker string, call func() error) error {
	policy := c.cfg.Retry
	attempts := policy.maxAttempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !policy.retryable(err) {
			return fmt.Errorf("failed to fetch %s: %w", ticker, err)
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := policy.wait(attempt)
		c.log.Warn().
			Err(err).
			Str("ticker", ticker).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Provider call failed, retrying")

		if err := policy.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &domain.ConnectivityError{Ticker: ticker, Attempts: attempts, Err: lastErr}
}

// load decodes a fresh store entry into out. Store and decode failures are
// treated as misses.
func (c *Cache) load(ctx context.Context, key string, out interface{}) bool {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false
	}
	return true
}

// save encodes the complete value before a single Put.
func (c *Cache) save(ctx context.Context, key string, value interface{}) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}
	if err := c.store.Put(ctx, key, data, c.cfg.TTL); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
