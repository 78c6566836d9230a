package optimization

import (
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// RiskParityOptimizer finds weights whose fractional risk contributions
// (w ⊙ Σw) / (w'Σw) are all equal to 1/n. The risk-free rate only feeds the
// reported Sharpe ratio.
type RiskParityOptimizer struct {
	log zerolog.Logger
}

// NewRiskParityOptimizer creates a risk parity optimizer.
func NewRiskParityOptimizer(log zerolog.Logger) *RiskParityOptimizer {
	return &RiskParityOptimizer{
		log: log.With().Str("component", "risk_parity_optimizer").Logger(),
	}
}

// Optimize solves the equal risk contribution problem. riskFreeRate is annual.
func (o *RiskParityOptimizer) Optimize(returns domain.ReturnMatrix, tickers []string, riskFreeRate float64) (domain.OptimizationResult, error) {
	moments, err := prepareMoments(returns, tickers)
	if err != nil {
		return domain.OptimizationResult{}, err
	}

	problem := simplexProblem{
		n: len(tickers),
		f: riskParityObjective(moments.Sigma),
	}

	raw, err := problem.solve(o.log)
	if err != nil {
		return domain.OptimizationResult{}, &domain.OptimizationInfeasibleError{
			Model:  ModelRiskParity,
			Reason: "risk parity solver failed",
			Err:    err,
		}
	}

	return finish(ModelRiskParity, moments, raw, riskFreeRate, o.log)
}
