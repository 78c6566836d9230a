package returns

import (
	"math"
	"testing"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "2024-01-" + string(rune('0'+(i+1)/10)) + string(rune('0'+(i+1)%10))
	}
	return out
}

func matrix(data map[string][]float64, tickers ...string) domain.PriceMatrix {
	n := 0
	for _, v := range data {
		n = len(v)
		break
	}
	return domain.PriceMatrix{Dates: dates(n), Tickers: tickers, Data: data}
}

func TestClean_SimpleReturns(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	prices := matrix(map[string][]float64{
		"AAA": {100, 110, 121, 121, 108.9, 119.79},
	}, "AAA")

	result, err := p.Clean(prices, []string{"AAA"})
	require.NoError(t, err)

	col := result.Column("AAA")
	require.Len(t, col, 6)
	// first row is back-filled from the second
	assert.InDelta(t, 0.10, col[0], 1e-12)
	assert.InDelta(t, 0.10, col[1], 1e-12)
	assert.InDelta(t, 0.10, col[2], 1e-12)
	assert.InDelta(t, 0.0, col[3], 1e-12)
	assert.InDelta(t, -0.10, col[4], 1e-12)
	assert.InDelta(t, 0.10, col[5], 1e-12)
	assert.Equal(t, prices.Dates, result.Dates)
}

func TestClean_GapPropagatesThenForwardFills(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	nan := math.NaN()
	prices := matrix(map[string][]float64{
		"AAA": {100, 101, 102, 103, 104, 105, 106},
		"BBB": {50, 55, nan, 60, 66, 66, 66},
	}, "AAA", "BBB")

	result, err := p.Clean(prices, []string{"AAA", "BBB"})
	require.NoError(t, err)

	b := result.Column("BBB")
	// returns on and after the gap are missing, then forward-filled with the last valid one
	assert.InDelta(t, 0.10, b[1], 1e-12)
	assert.InDelta(t, 0.10, b[2], 1e-12)
	assert.InDelta(t, 0.10, b[3], 1e-12)
	assert.InDelta(t, 0.10, b[4], 1e-12)
	assert.InDelta(t, 0.0, b[5], 1e-12)

	for _, ticker := range result.Tickers {
		for _, v := range result.Column(ticker) {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestClean_InfinityBecomesFilled(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	prices := matrix(map[string][]float64{
		"AAA": {1, 0, 2, 2.2, 2.42, 2.662},
	}, "AAA")

	result, err := p.Clean(prices, []string{"AAA"})
	require.NoError(t, err)

	col := result.Column("AAA")
	assert.InDelta(t, -1.0, col[1], 1e-12)
	// 2/0 is infinite and replaced by the previous return
	assert.InDelta(t, -1.0, col[2], 1e-12)
	assert.InDelta(t, 0.10, col[3], 1e-12)
}

func TestClean_AllMissingTickerReported(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	nan := math.NaN()
	prices := matrix(map[string][]float64{
		"AAA": {1, 2, 3, 4, 5, 6},
		"BBB": {nan, nan, nan, nan, nan, nan},
	}, "AAA", "BBB")

	_, err := p.Clean(prices, []string{"AAA", "BBB", "CCC"})

	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, []string{"BBB", "CCC"}, insufficient.Missing)
}

func TestClean_TooFewPriceRows(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	prices := matrix(map[string][]float64{"AAA": {1}}, "AAA")

	_, err := p.Clean(prices, []string{"AAA"})

	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Rows)
}

func TestClean_TooFewReturnRows(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	prices := matrix(map[string][]float64{"AAA": {1, 2, 3, 4}}, "AAA")

	_, err := p.Clean(prices, []string{"AAA"})

	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 4, insufficient.Rows)
}

func TestClean_KeepsRequestedOrderOnly(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	prices := matrix(map[string][]float64{
		"AAA": {1, 2, 3, 4, 5, 6},
		"BBB": {6, 5, 4, 3, 2, 1},
		"CCC": {1, 1, 1, 1, 1, 1},
	}, "AAA", "BBB", "CCC")

	result, err := p.Clean(prices, []string{"CCC", "AAA"})
	require.NoError(t, err)

	assert.Equal(t, []string{"CCC", "AAA"}, result.Tickers)
	assert.False(t, result.Has("BBB"))
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, result.Column("CCC"))
}

func TestClean_DoesNotMutateInput(t *testing.T) {
	p := NewPipeline(zerolog.Nop())
	nan := math.NaN()
	raw := []float64{1, nan, 3, 4, 5, 6}
	prices := matrix(map[string][]float64{"AAA": raw}, "AAA")

	_, err := p.Clean(prices, []string{"AAA"})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(raw[1]))
}
