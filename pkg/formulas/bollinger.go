package formulas

import (
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// BollingerBands represents Bollinger Bands values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// CalculateBollingerBands calculates Bollinger Bands over the trailing window.
//
// Bollinger Bands Formula:
//
//	Middle Band = N-day SMA
//	Upper Band = Middle + (k × sample std deviation)
//	Lower Band = Middle - (k × sample std deviation)
//
// The deviation is the sample (n-1) standard deviation of the window.
// Returns nil if insufficient data.
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	if length <= 1 || len(closes) < length {
		return nil
	}

	middle := last(talib.Sma(closes, length))
	if isNaN(middle) {
		return nil
	}

	window := closes[len(closes)-length:]
	sd := stat.StdDev(window, nil)

	return &BollingerBands{
		Upper:  middle + stdDevMultiplier*sd,
		Middle: middle,
		Lower:  middle - stdDevMultiplier*sd,
	}
}
