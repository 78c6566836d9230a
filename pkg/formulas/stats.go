package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily series.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
//
// A zero previous price yields ±Inf (or NaN for 0/0); callers decide how to
// repair those.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}

	return returns
}

// AnnualizeReturn scales a mean daily return to a yearly figure.
func AnnualizeReturn(daily float64) float64 {
	return daily * TradingDaysPerYear
}

// AnnualizeVolatility scales a daily standard deviation to a yearly figure.
func AnnualizeVolatility(daily float64) float64 {
	return daily * math.Sqrt(TradingDaysPerYear)
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
