package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

func TestBuildPriceMatrix_UnionAndGaps(t *testing.T) {
	a := PriceSeries{Ticker: "AAA", Bars: []PriceBar{
		{Date: day("2024-01-02"), Close: 10},
		{Date: day("2024-01-03"), Close: 11},
	}}
	b := PriceSeries{Ticker: "BBB", Bars: []PriceBar{
		{Date: day("2024-01-03"), Close: 20},
		{Date: day("2024-01-04"), Close: 21},
	}}

	m := BuildPriceMatrix([]PriceSeries{b, a})

	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04"}, m.Dates)
	assert.Equal(t, []string{"BBB", "AAA"}, m.Tickers)
	require.Len(t, m.Column("AAA"), 3)
	assert.Equal(t, 10.0, m.Column("AAA")[0])
	assert.True(t, math.IsNaN(m.Column("AAA")[2]))
	assert.True(t, math.IsNaN(m.Column("BBB")[0]))
}

func TestBuildPriceMatrix_SkipsEmptySeries(t *testing.T) {
	m := BuildPriceMatrix([]PriceSeries{{Ticker: "EMPTY"}})
	assert.False(t, m.Has("EMPTY"))
	assert.Equal(t, 0, m.Rows())
}

func TestSortBars_DedupesDates(t *testing.T) {
	bars := SortBars([]PriceBar{
		{Date: day("2024-01-03"), Close: 3},
		{Date: day("2024-01-02"), Close: 2},
		{Date: day("2024-01-03"), Close: 4},
	})
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[0].Close)
	assert.Equal(t, 4.0, bars[1].Close)
}

func TestParseFundamentalField(t *testing.T) {
	f, ok := ParseFundamentalField("trailingEps")
	assert.True(t, ok)
	assert.Equal(t, FieldEPS, f)

	f, ok = ParseFundamentalField("marketCap")
	assert.True(t, ok)
	assert.Equal(t, FieldMarketCap, f)

	_, ok = ParseFundamentalField("dividend")
	assert.False(t, ok)
}

func TestFundamentals_Field(t *testing.T) {
	beta := 1.2
	f := Fundamentals{Beta: &beta}
	assert.Equal(t, &beta, f.Field(FieldBeta))
	assert.Nil(t, f.Field(FieldEPS))
}
