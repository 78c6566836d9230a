// Package indicators computes technical and fundamental KPIs per ticker.
package indicators

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Indicator windows
const (
	RSIPeriod        = 14
	BollingerPeriod  = 20
	BollingerStdDev  = 2.0
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
	MinHistoryRows   = RSIPeriod
)

// Engine computes KPI sets from cached market data.
type Engine struct {
	data domain.MarketData
	log  zerolog.Logger
}

// NewEngine creates an indicator engine
func NewEngine(data domain.MarketData, log zerolog.Logger) *Engine {
	return &Engine{
		data: data,
		log:  log.With().Str("component", "indicator_engine").Logger(),
	}
}

// ComputeKPIs returns a KPISet for every ticker with at least MinHistoryRows of history.
//
// Tickers with no data, too little data or any per-ticker failure are left
// out of the result. A ConnectivityError aborts the whole call.
func (e *Engine) ComputeKPIs(ctx context.Context, tickers []string, start, end string) (map[string]domain.KPISet, error) {
	tickers, err := marketdata.NormalizeTickers(tickers)
	if err != nil {
		return nil, err
	}
	if err := marketdata.ValidateRange(start, end); err != nil {
		return nil, err
	}

	result := make(map[string]domain.KPISet, len(tickers))
	for _, ticker := range tickers {
		series, err := e.data.GetPriceHistory(ctx, ticker, start, end)
		if err != nil {
			var connErr *domain.ConnectivityError
			if errors.As(err, &connErr) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.log.Warn().Err(err).Str("ticker", ticker).Msg("Skipping ticker")
			continue
		}

		if series.Len() < MinHistoryRows {
			e.log.Debug().
				Str("ticker", ticker).
				Int("rows", series.Len()).
				Msg("Not enough history for indicators")
			continue
		}

		result[ticker] = e.kpis(ctx, ticker, series.Closes())
	}

	return result, nil
}

func (e *Engine) kpis(ctx context.Context, ticker string, closes []float64) domain.KPISet {
	current := closes[len(closes)-1]

	set := domain.KPISet{
		RSI: formulas.CalculateRSI(closes, RSIPeriod),
		Bollinger: domain.BollingerKPI{
			Current: current,
		},
		PE:   e.priceEarnings(ctx, ticker, current),
		Beta: e.fundamental(ctx, ticker, domain.FieldBeta),
	}

	if bands := formulas.CalculateBollingerBands(closes, BollingerPeriod, BollingerStdDev); bands != nil {
		set.Bollinger.Middle = floatPtr(bands.Middle)
		set.Bollinger.Upper = floatPtr(bands.Upper)
		set.Bollinger.Lower = floatPtr(bands.Lower)
	}

	if macd := formulas.CalculateMACD(closes, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod); macd != nil {
		set.MACD.MACD = floatPtr(macd.MACD)
		set.MACD.Signal = floatPtr(macd.Signal)
	}

	return set
}

func (e *Engine) priceEarnings(ctx context.Context, ticker string, price float64) *float64 {
	eps := e.fundamental(ctx, ticker, domain.FieldEPS)
	if eps == nil || *eps == 0 {
		return nil
	}
	return floatPtr(price / *eps)
}

// fundamental treats any lookup failure as an absent value.
func (e *Engine) fundamental(ctx context.Context, ticker string, field domain.FundamentalField) *float64 {
	value, err := e.data.GetFundamental(ctx, ticker, field)
	if err != nil {
		e.log.Debug().Err(err).Str("ticker", ticker).Str("field", string(field)).Msg("Fundamental unavailable")
		return nil
	}
	return value
}

func floatPtr(v float64) *float64 {
	return &v
}
