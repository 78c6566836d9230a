package optimization

import (
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Model names used in logs and errors
const (
	ModelMeanVariance   = "mean_variance"
	ModelRiskParity     = "risk_parity"
	ModelBlackLitterman = "black_litterman"
)

// MeanVarianceOptimizer finds the long-only, fully invested portfolio with
// the highest Sharpe ratio.
//
// Mathematical formulation:
//   - maximize (μ'w - r_f) / sqrt(w'Σw)
//   - subject to Σw = 1 and 0 ≤ w_i ≤ 1
//
// μ and Σ are daily sample moments; r_f is the annual rate divided by 252.
type MeanVarianceOptimizer struct {
	log zerolog.Logger
}

// NewMeanVarianceOptimizer creates a mean-variance optimizer.
func NewMeanVarianceOptimizer(log zerolog.Logger) *MeanVarianceOptimizer {
	return &MeanVarianceOptimizer{
		log: log.With().Str("component", "mean_variance_optimizer").Logger(),
	}
}

// Optimize solves the max-Sharpe problem for tickers over a cleaned return matrix.
// riskFreeRate is annual.
func (o *MeanVarianceOptimizer) Optimize(returns domain.ReturnMatrix, tickers []string, riskFreeRate float64) (domain.OptimizationResult, error) {
	moments, err := prepareMoments(returns, tickers)
	if err != nil {
		return domain.OptimizationResult{}, err
	}

	dailyRF := riskFreeRate / formulas.TradingDaysPerYear
	return maxSharpe(ModelMeanVariance, moments, dailyRF, riskFreeRate, o.log)
}

// prepareMoments estimates and validates μ and Σ and regularizes Σ.
func prepareMoments(returns domain.ReturnMatrix, tickers []string) (Moments, error) {
	moments, err := EstimateMoments(returns, tickers)
	if err != nil {
		return Moments{}, err
	}
	if err := moments.Validate(); err != nil {
		return Moments{}, err
	}
	moments.Sigma = Regularize(moments.Sigma, MinEigenvalue)
	return moments, nil
}

// maxSharpe is shared by the mean-variance and Black-Litterman models.
func maxSharpe(model string, m Moments, dailyRF, annualRF float64, log zerolog.Logger) (domain.OptimizationResult, error) {
	problem := simplexProblem{
		n:    len(m.Tickers),
		f:    negativeSharpe(m.Mu, m.Sigma, dailyRF),
		grad: negativeSharpeGrad(m.Mu, m.Sigma, dailyRF),
	}

	raw, err := problem.solve(log)
	if err != nil {
		return domain.OptimizationResult{}, &domain.OptimizationInfeasibleError{
			Model:  model,
			Reason: "max-Sharpe solver failed",
			Err:    err,
		}
	}

	return finish(model, m, raw, annualRF, log)
}

// finish validates weights and performance and annualizes the result.
func finish(model string, m Moments, raw []float64, annualRF float64, log zerolog.Logger) (domain.OptimizationResult, error) {
	w, err := finalizeWeights(model, raw)
	if err != nil {
		return domain.OptimizationResult{}, err
	}

	perf := evaluate(m.Mu, m.Sigma, w)
	if err := checkPerformance(model, perf); err != nil {
		return domain.OptimizationResult{}, err
	}

	result := perf.annualize(weightMap(m.Tickers, w), annualRF)
	log.Info().
		Str("model", model).
		Int("assets", len(m.Tickers)).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Float64("sharpe", result.SharpeRatio).
		Msg("Optimization complete")
	return result, nil
}
