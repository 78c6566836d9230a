package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRSI(t *testing.T) {
	t.Run("insufficient data returns nil", func(t *testing.T) {
		closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		assert.Nil(t, CalculateRSI(closes, 14))
	})

	t.Run("only gains is 100", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		rsi := CalculateRSI(closes, 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 100.0, *rsi, 1e-9)
	})

	t.Run("only losses is 0", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 - float64(i)
		}
		rsi := CalculateRSI(closes, 14)
		require.NotNil(t, rsi)
		assert.InDelta(t, 0.0, *rsi, 1e-9)
	})

	t.Run("flat prices are undefined", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 50
		}
		assert.Nil(t, CalculateRSI(closes, 14))
	})

	t.Run("exactly length closes is defined", func(t *testing.T) {
		closes := make([]float64, 14)
		for i := range closes {
			closes[i] = 10 + float64(i%2)
		}
		rsi := CalculateRSI(closes, 14)
		require.NotNil(t, rsi)
		// 7 up moves of 1, 6 down moves of 1, first row contributes nothing
		assert.InDelta(t, 100-100/(1+7.0/6.0), *rsi, 1e-9)
	})

	t.Run("always within bounds", func(t *testing.T) {
		closes := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
			45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41}
		rsi := CalculateRSI(closes, 14)
		require.NotNil(t, rsi)
		assert.GreaterOrEqual(t, *rsi, 0.0)
		assert.LessOrEqual(t, *rsi, 100.0)
	})
}
