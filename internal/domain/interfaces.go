package domain

import "context"

// MarketData is the read side of the market data cache.
// Indicator and optimization packages depend on this instead of the cache
// implementation to avoid import cycles.
type MarketData interface {
	// GetPriceHistory returns the daily history for ticker in [start, end].
	GetPriceHistory(ctx context.Context, ticker, start, end string) (PriceSeries, error)

	// GetPriceHistoryBatch fetches several tickers concurrently. Failed tickers
	// are omitted from the matrix rather than reported.
	GetPriceHistoryBatch(ctx context.Context, tickers []string, start, end string) (PriceMatrix, error)

	// GetFundamental returns one fundamental field, or nil when the provider has none.
	GetFundamental(ctx context.Context, ticker string, field FundamentalField) (*float64, error)
}
