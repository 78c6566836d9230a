package optimization

import (
	"fmt"
	"math/rand"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// asset describes a synthetic daily return series.
type asset struct {
	ticker string
	drift  float64
	vol    float64
}

// syntheticReturns builds a deterministic return matrix with rows dates.
func syntheticReturns(seed int64, rows int, assets ...asset) domain.ReturnMatrix {
	rng := rand.New(rand.NewSource(seed))
	m := domain.ReturnMatrix{
		Dates:   make([]string, rows),
		Tickers: make([]string, len(assets)),
		Data:    make(map[string][]float64, len(assets)),
	}
	for i := range m.Dates {
		m.Dates[i] = fmt.Sprintf("d%04d", i)
	}
	for j, a := range assets {
		m.Tickers[j] = a.ticker
		col := make([]float64, rows)
		for i := range col {
			col[i] = a.drift + a.vol*rng.NormFloat64()
		}
		m.Data[a.ticker] = col
	}
	return m
}

// linearPrices builds a price matrix of straight-line series.
func linearPrices(days int, series map[string][2]float64) domain.PriceMatrix {
	m := domain.PriceMatrix{
		Dates: make([]string, days),
		Data:  make(map[string][]float64, len(series)),
	}
	for i := range m.Dates {
		m.Dates[i] = fmt.Sprintf("2024-%03d", i)
	}
	for ticker, line := range series {
		m.Tickers = append(m.Tickers, ticker)
		col := make([]float64, days)
		for i := range col {
			col[i] = line[0] + line[1]*float64(i)
		}
		m.Data[ticker] = col
	}
	return m
}

func sumWeights(w map[string]float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}
