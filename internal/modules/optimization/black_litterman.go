package optimization

import (
	"errors"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/formulas"
)

// Black-Litterman defaults
const (
	DefaultTau               = 0.05
	DefaultMarketProxy       = "SPY"
	DefaultMarketProxyCap    = 45e12
	feasibilityPremiumAnnual = 0.01
	covarianceInfBound       = 1e6
)

// Likely causes reported when the Black-Litterman solve fails
var blFailureCauses = []string{
	"invalid or missing market cap data for some tickers",
	"numerically unstable covariance matrix",
	"conflicting views in the Black-Litterman model",
}

// BlackLittermanConfig configures the market prior.
type BlackLittermanConfig struct {
	// ProxyTicker is the broad-market series used for risk aversion.
	ProxyTicker string
	// ProxyCap replaces the provider market cap of the proxy.
	ProxyCap float64
	// Tau scales prior uncertainty.
	Tau float64
}

// DefaultBlackLittermanConfig returns SPY at 45T with τ = 0.05.
func DefaultBlackLittermanConfig() BlackLittermanConfig {
	return BlackLittermanConfig{
		ProxyTicker: DefaultMarketProxy,
		ProxyCap:    DefaultMarketProxyCap,
		Tau:         DefaultTau,
	}
}

// BlackLittermanOptimizer blends a market-implied (or historical) prior with
// investor views and maximizes the Sharpe ratio of the posterior.
type BlackLittermanOptimizer struct {
	cfg BlackLittermanConfig
	log zerolog.Logger
}

// NewBlackLittermanOptimizer creates a Black-Litterman optimizer.
func NewBlackLittermanOptimizer(cfg BlackLittermanConfig, log zerolog.Logger) *BlackLittermanOptimizer {
	if cfg.ProxyTicker == "" {
		cfg.ProxyTicker = DefaultMarketProxy
	}
	if cfg.ProxyCap <= 0 {
		cfg.ProxyCap = DefaultMarketProxyCap
	}
	if cfg.Tau <= 0 {
		cfg.Tau = DefaultTau
	}
	return &BlackLittermanOptimizer{
		cfg: cfg,
		log: log.With().Str("component", "black_litterman_optimizer").Logger(),
	}
}

// Optimize computes posterior returns and covariance and solves for max Sharpe.
// marketCaps may miss tickers or hold nil values; the proxy's cap is always
// the configured one. riskFreeRate is annual.
func (o *BlackLittermanOptimizer) Optimize(
	returns domain.ReturnMatrix,
	tickers []string,
	riskFreeRate float64,
	views Views,
	marketCaps map[string]*float64,
) (domain.OptimizationResult, error) {
	moments, err := EstimateMoments(returns, tickers)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	if err := moments.Validate(); err != nil {
		return domain.OptimizationResult{}, err
	}

	dailyRF := riskFreeRate / formulas.TradingDaysPerYear
	sigma := moments.Sigma

	prior := o.prior(returns, moments, riskFreeRate, marketCaps)

	p, q := views.Matrices(tickers)
	postMu, postSigma := o.posterior(sigma, prior, p, q)

	postMu = repairReturns(postMu, moments.Mu, dailyRF)
	cleanSigma := cleanCovariance(postSigma)

	result, err := maxSharpe(ModelBlackLitterman, Moments{
		Tickers: moments.Tickers,
		Mu:      postMu,
		Sigma:   cleanSigma,
	}, dailyRF, riskFreeRate, o.log)
	if err != nil {
		var infeasible *domain.OptimizationInfeasibleError
		if errors.As(err, &infeasible) {
			infeasible.Causes = blFailureCauses
		}
		return domain.OptimizationResult{}, err
	}
	return result, nil
}

// prior returns the market-implied equilibrium returns
//
//	π = δ Σ w_mkt + r_f,  δ = (E[r_mkt] - r_f) / Var(r_mkt)
//
// when the proxy is among tickers and every ticker has a market cap,
// otherwise the historical mean returns.
func (o *BlackLittermanOptimizer) prior(
	returns domain.ReturnMatrix,
	m Moments,
	riskFreeRate float64,
	marketCaps map[string]*float64,
) []float64 {
	historical := append([]float64(nil), m.Mu...)

	weights, ok := o.marketWeights(m.Tickers, marketCaps)
	if !ok {
		o.log.Debug().Msg("Market prior unavailable, using historical mean returns")
		return historical
	}

	proxy := returns.Column(o.cfg.ProxyTicker)
	annualMean := stat.Mean(proxy, nil) * formulas.TradingDaysPerYear
	annualVar := stat.Variance(proxy, nil) * formulas.TradingDaysPerYear
	delta := (annualMean - riskFreeRate) / annualVar
	if !isFinite(delta) {
		o.log.Warn().
			Str("proxy", o.cfg.ProxyTicker).
			Msg("Market risk aversion is undefined, using historical mean returns")
		return historical
	}

	implied := mat.NewVecDense(len(weights), nil)
	implied.MulVec(m.Sigma, mat.NewVecDense(len(weights), weights))
	pi := make([]float64, len(weights))
	dailyRF := riskFreeRate / formulas.TradingDaysPerYear
	for i := range pi {
		pi[i] = delta*implied.AtVec(i) + dailyRF
	}

	o.log.Debug().Float64("risk_aversion", delta).Msg("Using market-implied prior")
	return pi
}

// marketWeights returns cap weights when the proxy is present and every
// other ticker has a positive market cap.
func (o *BlackLittermanOptimizer) marketWeights(tickers []string, marketCaps map[string]*float64) ([]float64, bool) {
	hasProxy := false
	caps := make([]float64, len(tickers))
	for i, t := range tickers {
		if t == o.cfg.ProxyTicker {
			hasProxy = true
			caps[i] = o.cfg.ProxyCap
			continue
		}
		c := marketCaps[t]
		if c == nil || !isFinite(*c) || *c <= 0 {
			return nil, false
		}
		caps[i] = *c
	}
	if !hasProxy {
		return nil, false
	}
	floats.Scale(1/floats.Sum(caps), caps)
	return caps, true
}

// posterior blends the prior with the views:
//
//	A     = P τΣ P' + Ω,  Ω = diag(P τΣ P')
//	μ_BL  = π + τΣ P' A⁻¹ (Q - Pπ)
//	Σ_BL  = Σ + τΣ - τΣ P' A⁻¹ P τΣ
//
// Without views the posterior mean is the prior. When A is singular the
// posterior mean is NaN and left to repairReturns.
func (o *BlackLittermanOptimizer) posterior(sigma *mat.SymDense, prior []float64, p *mat.Dense, q []float64) ([]float64, *mat.Dense) {
	n := len(prior)

	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(o.cfg.Tau, sigma)

	cov := mat.NewDense(n, n, nil)
	cov.Add(sigma, tauSigma)

	if p == nil {
		return append([]float64(nil), prior...), cov
	}

	k, _ := p.Dims()

	var tsP mat.Dense // n×k
	tsP.Mul(tauSigma, p.T())

	var a mat.Dense // k×k
	a.Mul(p, &tsP)
	for i := 0; i < k; i++ {
		a.Set(i, i, 2*a.At(i, i))
	}

	piVec := mat.NewVecDense(n, append([]float64(nil), prior...))
	var residual mat.VecDense
	residual.MulVec(p, piVec)
	for i := 0; i < k; i++ {
		residual.SetVec(i, q[i]-residual.AtVec(i))
	}

	var x mat.VecDense
	if err := x.SolveVec(&a, &residual); err != nil && !isConditionWarning(err) {
		o.log.Warn().Err(err).Msg("View matrix is singular")
		nan := make([]float64, n)
		for i := range nan {
			nan[i] = math.NaN()
		}
		return nan, cov
	}

	var shift mat.VecDense
	shift.MulVec(&tsP, &x)
	post := make([]float64, n)
	for i := range post {
		post[i] = prior[i] + shift.AtVec(i)
	}

	var y mat.Dense // k×n
	if err := y.Solve(&a, tsP.T()); err == nil || isConditionWarning(err) {
		var correction mat.Dense
		correction.Mul(&tsP, &y)
		cov.Sub(cov, &correction)
	}

	return post, cov
}

// repairReturns makes posterior returns finite and guarantees at least one
// exceeds the risk-free rate:
//  1. non-finite values take the historical mean, or 0
//  2. anything still non-finite takes the mean of the finite values, or 0
//  3. if max ≤ r_f, use the historical means when their max clears r_f,
//     otherwise add r_f - max + 1%/252 to every value
func repairReturns(post, historical []float64, dailyRF float64) []float64 {
	out := append([]float64(nil), post...)

	for i, v := range out {
		if isFinite(v) {
			continue
		}
		if i < len(historical) && isFinite(historical[i]) {
			out[i] = historical[i]
		} else {
			out[i] = 0
		}
	}

	var finite []float64
	repairNeeded := false
	for _, v := range out {
		if isFinite(v) {
			finite = append(finite, v)
		} else {
			repairNeeded = true
		}
	}
	if repairNeeded {
		fill := 0.0
		if len(finite) > 0 {
			fill = stat.Mean(finite, nil)
		}
		for i, v := range out {
			if !isFinite(v) {
				out[i] = fill
			}
		}
	}

	if len(out) == 0 || floats.Max(out) > dailyRF {
		return out
	}

	premium := feasibilityPremiumAnnual / formulas.TradingDaysPerYear
	if len(historical) == len(out) {
		histMax := floats.Max(historical)
		if histMax > dailyRF {
			return append([]float64(nil), historical...)
		}
		shifted := append([]float64(nil), historical...)
		floats.AddConst(dailyRF-histMax+premium, shifted)
		return shifted
	}

	floats.AddConst(dailyRF-floats.Max(out)+premium, out)
	return out
}

// cleanCovariance bounds non-finite entries, symmetrizes, adds 1e-8 to the
// diagonal, falls back to a mean-variance diagonal if anything is still
// non-finite, and shifts the spectrum when an eigenvalue is below -1e-8.
func cleanCovariance(cov *mat.Dense) *mat.SymDense {
	n, _ := cov.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (boundEntry(cov.At(i, j)) + boundEntry(cov.At(j, i))) / 2
			if i == j {
				v += MinEigenvalue
			}
			sym.SetSym(i, j, v)
		}
	}

	if !symFinite(sym) {
		var diag float64
		for i := 0; i < n; i++ {
			diag += sym.At(i, i)
		}
		diag /= float64(n)
		sym = mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			sym.SetSym(i, i, diag)
		}
	}

	return Regularize(sym, -MinEigenvalue)
}

// isConditionWarning reports an ill-conditioned but solved system.
func isConditionWarning(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond) && !math.IsInf(float64(cond), 1)
}

func boundEntry(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return covarianceInfBound
	case math.IsInf(v, -1):
		return -covarianceInfBound
	}
	return v
}

func symFinite(s *mat.SymDense) bool {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if !isFinite(s.At(i, j)) {
				return false
			}
		}
	}
	return true
}
