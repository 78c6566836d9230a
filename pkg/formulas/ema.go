package formulas

// EMASeries returns the exponential moving average of values for the given span.
//
// EMA Formula:
//
//	EMA_0 = x_0
//	EMA_t = α·x_t + (1-α)·EMA_(t-1), α = 2 / (span + 1)
//
// The series is seeded with the first observation and carries no bias
// adjustment, so every position is defined. talib.Ema seeds with an SMA and
// leaves the warm-up window empty, which shifts MACD on short histories.
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}

	alpha := 2.0 / (float64(span) + 1.0)
	ema := make([]float64, len(values))
	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = alpha*values[i] + (1-alpha)*ema[i-1]
	}
	return ema
}

// MACD holds the latest MACD line and signal line values
type MACD struct {
	MACD   float64 `json:"macd"`
	Signal float64 `json:"signal"`
}

// CalculateMACD calculates EMA(fast) - EMA(slow) and its EMA(signal).
// Returns nil for an empty series.
func CalculateMACD(closes []float64, fast, slow, signal int) *MACD {
	if len(closes) == 0 {
		return nil
	}

	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	if fastEMA == nil || slowEMA == nil {
		return nil
	}

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := EMASeries(line, signal)
	if signalLine == nil {
		return nil
	}

	return &MACD{
		MACD:   line[len(line)-1],
		Signal: signalLine[len(signalLine)-1],
	}
}
