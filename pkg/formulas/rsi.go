package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index from simple rolling
// means of gains and losses.
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = mean(gains over last N rows) / mean(losses over last N rows)
//
// The first row has no prior close and contributes a zero gain and loss, so
// the window is defined as soon as N closes exist.
//
// Returns nil when fewer than length closes are available, or when the window
// saw no movement at all (both averages zero).
func CalculateRSI(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	avgGain := last(talib.Sma(gains, length))
	avgLoss := last(talib.Sma(losses, length))

	var rsi float64
	switch {
	case avgLoss == 0 && avgGain == 0:
		return nil
	case avgLoss == 0:
		rsi = 100
	default:
		rs := avgGain / avgLoss
		rsi = 100 - (100 / (1 + rs))
	}

	if math.IsNaN(rsi) {
		return nil
	}
	return &rsi
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
