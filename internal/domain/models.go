// Package domain provides core domain models and types.
package domain

import (
	"math"
	"sort"
	"time"
)

// DateLayout is the calendar date format used for ranges and matrix indexes.
const DateLayout = "2006-01-02"

// PriceBar is one daily OHLCV row
type PriceBar struct {
	Date     time.Time `json:"date" msgpack:"date"`
	Open     float64   `json:"open" msgpack:"open"`
	High     float64   `json:"high" msgpack:"high"`
	Low      float64   `json:"low" msgpack:"low"`
	Close    float64   `json:"close" msgpack:"close"`
	AdjClose float64   `json:"adj_close" msgpack:"adj_close"`
	Volume   int64     `json:"volume" msgpack:"volume"`
}

// Price returns the split/dividend adjusted close, falling back to the raw close.
func (b PriceBar) Price() float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// PriceSeries is the chronologically ordered history of one ticker.
// A fetched series is never mutated; a refetch replaces it.
type PriceSeries struct {
	Ticker string     `json:"ticker" msgpack:"ticker"`
	Bars   []PriceBar `json:"bars" msgpack:"bars"`
}

// Len returns the number of rows
func (s PriceSeries) Len() int {
	return len(s.Bars)
}

// Closes returns the adjusted closing prices in date order
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		closes[i] = bar.Price()
	}
	return closes
}

// SortBars orders bars by date and drops duplicate dates, keeping the last seen.
func SortBars(bars []PriceBar) []PriceBar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	out := bars[:0]
	for _, bar := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Format(DateLayout) == bar.Date.Format(DateLayout) {
			out[n-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}

// TimeSeriesData is a date-indexed matrix of per-ticker values.
// Missing observations are NaN.
type TimeSeriesData struct {
	Dates   []string             `json:"dates"`
	Tickers []string             `json:"tickers"`
	Data    map[string][]float64 `json:"data"`
}

// PriceMatrix maps ticker to closing prices aligned on a shared date index.
type PriceMatrix = TimeSeriesData

// ReturnMatrix holds cleaned daily returns: no NaN or Inf, at least 5 rows.
type ReturnMatrix = TimeSeriesData

// Rows returns the number of dates
func (d TimeSeriesData) Rows() int {
	return len(d.Dates)
}

// Has reports whether a column exists for ticker
func (d TimeSeriesData) Has(ticker string) bool {
	_, ok := d.Data[ticker]
	return ok
}

// Column returns the series for ticker, or nil
func (d TimeSeriesData) Column(ticker string) []float64 {
	return d.Data[ticker]
}

// BuildPriceMatrix aligns the adjusted close prices of several series on the union of
// their dates. Dates without a value for any ticker are dropped.
func BuildPriceMatrix(series []PriceSeries) PriceMatrix {
	byTicker := make(map[string]map[string]float64, len(series))
	dateSet := make(map[string]struct{})
	tickers := make([]string, 0, len(series))

	for _, s := range series {
		if s.Len() == 0 {
			continue
		}
		if _, seen := byTicker[s.Ticker]; !seen {
			tickers = append(tickers, s.Ticker)
		}
		values := make(map[string]float64, len(s.Bars))
		for _, bar := range s.Bars {
			day := bar.Date.Format(DateLayout)
			values[day] = bar.Price()
			dateSet[day] = struct{}{}
		}
		byTicker[s.Ticker] = values
	}

	dates := make([]string, 0, len(dateSet))
	for day := range dateSet {
		dates = append(dates, day)
	}
	sort.Strings(dates)

	matrix := PriceMatrix{
		Dates:   make([]string, 0, len(dates)),
		Tickers: tickers,
		Data:    make(map[string][]float64, len(tickers)),
	}
	for _, day := range dates {
		valid := false
		for _, ticker := range tickers {
			if v, ok := byTicker[ticker][day]; ok && !math.IsNaN(v) {
				valid = true
				break
			}
		}
		if !valid {
			continue
		}
		matrix.Dates = append(matrix.Dates, day)
		for _, ticker := range tickers {
			v, ok := byTicker[ticker][day]
			if !ok {
				v = math.NaN()
			}
			matrix.Data[ticker] = append(matrix.Data[ticker], v)
		}
	}

	return matrix
}

// FundamentalField names a scalar fundamental value
type FundamentalField string

const (
	FieldEPS       FundamentalField = "eps"
	FieldBeta      FundamentalField = "beta"
	FieldMarketCap FundamentalField = "market_cap"
)

// ParseFundamentalField accepts canonical names and the provider's field names.
func ParseFundamentalField(name string) (FundamentalField, bool) {
	switch name {
	case "eps", "trailingEps":
		return FieldEPS, true
	case "beta":
		return FieldBeta, true
	case "market_cap", "marketCap":
		return FieldMarketCap, true
	}
	return "", false
}

// Fundamentals are per-ticker scalars; any of them may be absent.
type Fundamentals struct {
	EPS       *float64 `json:"eps" msgpack:"eps"`
	Beta      *float64 `json:"beta" msgpack:"beta"`
	MarketCap *float64 `json:"market_cap" msgpack:"market_cap"`
}

// Field returns the value for f, or nil when absent
func (f Fundamentals) Field(field FundamentalField) *float64 {
	switch field {
	case FieldEPS:
		return f.EPS
	case FieldBeta:
		return f.Beta
	case FieldMarketCap:
		return f.MarketCap
	}
	return nil
}

// BollingerKPI is the latest Bollinger reading plus the current price
type BollingerKPI struct {
	Middle  *float64 `json:"middle"`
	Upper   *float64 `json:"upper"`
	Lower   *float64 `json:"lower"`
	Current float64  `json:"current"`
}

// MACDKPI is the latest MACD line and signal line
type MACDKPI struct {
	MACD   *float64 `json:"macd"`
	Signal *float64 `json:"signal"`
}

// KPISet holds every indicator for one ticker. It is built whole per call.
type KPISet struct {
	RSI       *float64     `json:"rsi"`
	Bollinger BollingerKPI `json:"bollinger"`
	PE        *float64     `json:"pe_ratio"`
	Beta      *float64     `json:"beta"`
	MACD      MACDKPI      `json:"macd"`
}

// OptimizationResult is the immutable output of every optimizer.
// Return and volatility are annualized.
type OptimizationResult struct {
	Weights        map[string]float64 `json:"weights"`
	ExpectedReturn float64            `json:"expected_return"`
	Volatility     float64            `json:"volatility"`
	SharpeRatio    float64            `json:"sharpe_ratio"`
}
