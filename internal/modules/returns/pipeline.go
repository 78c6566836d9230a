// Package returns turns aligned price matrices into clean daily return matrices.
package returns

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

const (
	// MinPriceRows is the minimum number of price dates needed to compute a return.
	MinPriceRows = 2
	// MinReturnRows is the minimum number of return rows the optimizers accept.
	MinReturnRows = 5
)

// Pipeline cleans price matrices into return matrices.
// It is stateless and safe for concurrent use.
type Pipeline struct {
	log zerolog.Logger
}

// NewPipeline creates a returns pipeline
func NewPipeline(log zerolog.Logger) *Pipeline {
	return &Pipeline{
		log: log.With().Str("component", "returns_pipeline").Logger(),
	}
}

// Clean converts prices into daily simple returns for the requested tickers.
//
// Columns with no observations are dropped, gaps are not filled before the
// percentage change so a missing price yields a missing return, infinite
// returns are treated as missing, and missing returns are forward-filled,
// then back-filled, then zeroed. The first row therefore repeats the second.
func (p *Pipeline) Clean(prices domain.PriceMatrix, requested []string) (domain.ReturnMatrix, error) {
	columns := dropEmptyColumns(prices)

	if len(prices.Dates) < MinPriceRows {
		return domain.ReturnMatrix{}, &domain.InsufficientDataError{
			Reason: fmt.Sprintf("need at least %d price rows, got %d", MinPriceRows, len(prices.Dates)),
			Rows:   len(prices.Dates),
		}
	}

	var missing []string
	for _, ticker := range requested {
		if _, ok := columns[ticker]; !ok {
			missing = append(missing, ticker)
		}
	}
	if len(missing) > 0 {
		return domain.ReturnMatrix{}, &domain.InsufficientDataError{
			Reason:  "tickers missing from price data",
			Rows:    len(prices.Dates),
			Missing: missing,
		}
	}

	rows := len(prices.Dates)
	filled := make(map[string][]float64, len(requested))
	gaps := 0
	for _, ticker := range requested {
		series := percentChange(columns[ticker])
		gaps += countMissing(series)
		filled[ticker] = fillMissing(series)
	}
	if gaps > len(requested) {
		p.log.Debug().
			Int("filled_returns", gaps-len(requested)).
			Int("rows", rows).
			Msg("Filled missing returns")
	}

	result := dropEmptyRows(prices.Dates, requested, filled)
	if result.Rows() < MinReturnRows {
		return domain.ReturnMatrix{}, &domain.InsufficientDataError{
			Reason: fmt.Sprintf("need at least %d return rows, got %d", MinReturnRows, result.Rows()),
			Rows:   result.Rows(),
		}
	}

	return result, nil
}

func dropEmptyColumns(prices domain.PriceMatrix) map[string][]float64 {
	columns := make(map[string][]float64, len(prices.Data))
	for ticker, values := range prices.Data {
		for _, v := range values {
			if !math.IsNaN(v) {
				columns[ticker] = values
				break
			}
		}
	}
	return columns
}

// percentChange computes p[i]/p[i-1]-1 without filling gaps first.
// Row 0 is always NaN and infinities become NaN.
func percentChange(prices []float64) []float64 {
	out := make([]float64, len(prices))
	if len(out) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(prices); i++ {
		r := prices[i]/prices[i-1] - 1
		if math.IsInf(r, 0) {
			r = math.NaN()
		}
		out[i] = r
	}
	return out
}

func countMissing(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// fillMissing forward-fills, then back-fills, then replaces anything left with zero.
func fillMissing(values []float64) []float64 {
	filled := make([]float64, len(values))
	copy(filled, values)

	lastValid, hasLast := 0.0, false
	for i, v := range filled {
		if math.IsNaN(v) {
			if hasLast {
				filled[i] = lastValid
			}
			continue
		}
		lastValid, hasLast = v, true
	}

	nextValid, hasNext := 0.0, false
	for i := len(filled) - 1; i >= 0; i-- {
		if math.IsNaN(filled[i]) {
			if hasNext {
				filled[i] = nextValid
			}
			continue
		}
		nextValid, hasNext = filled[i], true
	}

	for i, v := range filled {
		if math.IsNaN(v) {
			filled[i] = 0
		}
	}
	return filled
}

// dropEmptyRows removes dates where every ticker is NaN. After filling this
// only matters for an empty ticker list, but the matrix shape stays consistent.
func dropEmptyRows(dates, tickers []string, data map[string][]float64) domain.ReturnMatrix {
	out := domain.ReturnMatrix{
		Dates:   make([]string, 0, len(dates)),
		Tickers: append([]string(nil), tickers...),
		Data:    make(map[string][]float64, len(tickers)),
	}
	for i, day := range dates {
		keep := false
		for _, ticker := range tickers {
			if !math.IsNaN(data[ticker][i]) {
				keep = true
				break
			}
		}
		if !keep {
			continue
		}
		out.Dates = append(out.Dates, day)
		for _, ticker := range tickers {
			out.Data[ticker] = append(out.Data[ticker], data[ticker][i])
		}
	}
	return out
}
