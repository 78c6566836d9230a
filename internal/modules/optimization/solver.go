package optimization

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Solver settings shared by every model
const (
	MaxIterations     = 1000
	FunctionTolerance = 1e-9
	// PenaltyValue is returned for trial points the objective cannot evaluate.
	PenaltyValue = 1e10
	// minStdDev is the smallest portfolio standard deviation treated as non-zero.
	minStdDev = 1e-10
	// weightSumTolerance bounds the drift accepted before renormalizing.
	weightSumTolerance = 0.01
)

// errNotConverged means no method reached an accepted status.
var errNotConverged = errors.New("solver did not converge")

// softmax maps unconstrained logits onto the simplex: every weight is in
// [0, 1] and the weights sum to 1. Zero logits give equal weights.
func softmax(z []float64) []float64 {
	w := make([]float64, len(z))
	peak := floats.Max(z)
	var sum float64
	for i, v := range z {
		w[i] = math.Exp(v - peak)
		sum += w[i]
	}
	floats.Scale(1/sum, w)
	return w
}

// chainSoftmax converts a gradient with respect to weights into a gradient
// with respect to logits: dF/dz_k = w_k (g_k - Σ_j w_j g_j).
func chainSoftmax(dst, w, g []float64) {
	dot := floats.Dot(w, g)
	for k := range dst {
		dst[k] = w[k] * (g[k] - dot)
	}
}

func quadForm(sigma mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, sigma, v)
}

func marginalRisk(sigma mat.Symmetric, w []float64) []float64 {
	out := mat.NewVecDense(len(w), nil)
	out.MulVec(sigma, mat.NewVecDense(len(w), w))
	return out.RawVector().Data
}

// negativeSharpe is -(w'μ - rf) / sqrt(w'Σw) with rf in the same units as μ.
func negativeSharpe(mu []float64, sigma mat.Symmetric, rf float64) func(w []float64) float64 {
	return func(w []float64) float64 {
		std := math.Sqrt(quadForm(sigma, w))
		if !(std >= minStdDev) {
			return PenaltyValue
		}
		return -(floats.Dot(w, mu) - rf) / std
	}
}

// negativeSharpeGrad is the analytic weight gradient of negativeSharpe.
func negativeSharpeGrad(mu []float64, sigma mat.Symmetric, rf float64) func(g, w []float64) {
	return func(g, w []float64) {
		sw := marginalRisk(sigma, w)
		variance := floats.Dot(w, sw)
		std := math.Sqrt(variance)
		if !(std >= minStdDev) {
			for i := range g {
				g[i] = 0
			}
			return
		}
		excess := floats.Dot(w, mu) - rf
		cube := std * variance
		for i := range g {
			g[i] = -mu[i]/std + excess*sw[i]/cube
		}
	}
}

// riskParityObjective is the squared distance of fractional risk
// contributions from the equal-contribution target.
func riskParityObjective(sigma mat.Symmetric) func(w []float64) float64 {
	return func(w []float64) float64 {
		var sum float64
		for _, v := range w {
			if v < 0 || v > 1 {
				return PenaltyValue
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-4 {
			return PenaltyValue
		}

		sw := marginalRisk(sigma, w)
		variance := floats.Dot(w, sw)
		if !(variance > 0) {
			return PenaltyValue
		}

		target := 1 / float64(len(w))
		var obj float64
		for i := range w {
			d := w[i]*sw[i]/variance - target
			obj += d * d
		}
		return obj
	}
}

// RiskContributions returns each asset's fraction of total portfolio variance.
func RiskContributions(sigma mat.Symmetric, w []float64) []float64 {
	sw := marginalRisk(sigma, w)
	variance := floats.Dot(w, sw)
	out := make([]float64, len(w))
	for i := range w {
		out[i] = w[i] * sw[i] / variance
	}
	return out
}

// simplexProblem solves min f(w) over the long-only, fully invested simplex
// by optimizing softmax logits. With grad nil a central difference gradient
// is used.
type simplexProblem struct {
	n    int
	f    func(w []float64) float64
	grad func(g, w []float64)
}

func (p simplexProblem) problem() optimize.Problem {
	f := func(z []float64) float64 {
		return p.f(softmax(z))
	}

	var grad func(dst, z []float64)
	if p.grad != nil {
		g := make([]float64, p.n)
		grad = func(dst, z []float64) {
			w := softmax(z)
			p.grad(g, w)
			chainSoftmax(dst, w, g)
		}
	} else {
		settings := &fd.Settings{Formula: fd.Central}
		grad = func(dst, z []float64) {
			fd.Gradient(dst, f, z, settings)
		}
	}

	return optimize.Problem{Func: f, Grad: grad}
}

func solverSettings() *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   FunctionTolerance,
			Iterations: 20,
		},
	}
}

func accepted(status optimize.Status) bool {
	return status == optimize.Success ||
		status == optimize.GradientThreshold ||
		status == optimize.FunctionConvergence ||
		status == optimize.MethodConverge
}

// solve runs BFGS from equal weights and falls back to Nelder-Mead when BFGS
// fails or stops without converging. It returns weights on the simplex.
func (p simplexProblem) solve(log zerolog.Logger) ([]float64, error) {
	if p.n == 1 {
		return []float64{1}, nil
	}

	problem := p.problem()
	initial := make([]float64, p.n)

	result, err := optimize.Minimize(problem, initial, solverSettings(), &optimize.BFGS{})
	if err == nil && result != nil && accepted(result.Status) {
		return softmax(result.X), nil
	}

	event := log.Debug()
	if err != nil {
		event = event.Err(err)
	}
	if result != nil {
		event = event.Str("status", result.Status.String())
	}
	event.Msg("BFGS did not converge, retrying with Nelder-Mead")

	result, err = optimize.Minimize(problem, initial, solverSettings(), &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotConverged, err)
	}
	if result == nil || !accepted(result.Status) {
		status := "unknown"
		if result != nil {
			status = result.Status.String()
		}
		return nil, fmt.Errorf("%w: status=%s", errNotConverged, status)
	}
	return softmax(result.X), nil
}

// performance holds daily portfolio statistics before annualization.
type performance struct {
	dailyReturn float64
	dailyVol    float64
}

func evaluate(mu []float64, sigma mat.Symmetric, w []float64) performance {
	variance := quadForm(sigma, w)
	vol := math.NaN()
	if variance >= 0 {
		vol = math.Sqrt(variance)
	}
	return performance{
		dailyReturn: floats.Dot(w, mu),
		dailyVol:    vol,
	}
}

// annualize scales daily figures by 252 and √252 and recomputes Sharpe
// against the annual risk-free rate. A non-finite Sharpe is reported as 0.
func (p performance) annualize(weights map[string]float64, riskFreeRate float64) domain.OptimizationResult {
	annualReturn := formulas.AnnualizeReturn(p.dailyReturn)
	annualVol := formulas.AnnualizeVolatility(p.dailyVol)
	sharpe := (annualReturn - riskFreeRate) / annualVol
	if !isFinite(sharpe) {
		sharpe = 0
	}
	return domain.OptimizationResult{
		Weights:        weights,
		ExpectedReturn: annualReturn,
		Volatility:     annualVol,
		SharpeRatio:    sharpe,
	}
}

// finalizeWeights validates solver output: weights must be finite, are
// clipped at zero, and are renormalized when they drift more than 1% from a
// full investment.
func finalizeWeights(model string, w []float64) ([]float64, error) {
	out := make([]float64, len(w))
	var sum float64
	for i, v := range w {
		if !isFinite(v) {
			return nil, &domain.OptimizationInfeasibleError{
				Model:  model,
				Reason: fmt.Sprintf("weight %d is not finite", i),
			}
		}
		out[i] = math.Max(0, v)
		sum += out[i]
	}

	if math.Abs(sum-1) > weightSumTolerance {
		if sum <= minStdDev {
			return nil, &domain.OptimizationInfeasibleError{Model: model, Reason: "all weights are zero"}
		}
		floats.Scale(1/sum, out)
	}
	return out, nil
}

// checkPerformance rejects non-finite return or volatility and zero volatility.
func checkPerformance(model string, p performance) error {
	if !isFinite(p.dailyReturn) {
		return &domain.OptimizationInfeasibleError{Model: model, Reason: "portfolio return is not finite"}
	}
	if !isFinite(p.dailyVol) || p.dailyVol < minStdDev {
		return &domain.OptimizationInfeasibleError{Model: model, Reason: "portfolio volatility is not positive"}
	}
	return nil
}

func weightMap(tickers []string, w []float64) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	for i, t := range tickers {
		out[t] = w[i]
	}
	return out
}
