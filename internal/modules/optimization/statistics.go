package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// MinEigenvalue is the smallest eigenvalue a covariance matrix may have
// before it is shifted along the diagonal.
const MinEigenvalue = 1e-8

// Moments are the sample mean daily returns and covariance of a return matrix,
// ordered like Tickers.
type Moments struct {
	Tickers []string
	Mu      []float64
	Sigma   *mat.SymDense
}

// EstimateMoments computes column means and the sample (n-1) covariance.
func EstimateMoments(returns domain.ReturnMatrix, tickers []string) (Moments, error) {
	n := len(tickers)
	rows := returns.Rows()
	if n == 0 {
		return Moments{}, &domain.InsufficientDataError{Reason: "no tickers"}
	}
	if rows < 2 {
		return Moments{}, &domain.InsufficientDataError{
			Reason: fmt.Sprintf("need at least 2 return rows, got %d", rows),
			Rows:   rows,
		}
	}

	data := mat.NewDense(rows, n, nil)
	mu := make([]float64, n)
	for j, ticker := range tickers {
		col := returns.Column(ticker)
		if len(col) != rows {
			return Moments{}, &domain.InsufficientDataError{
				Reason:  "return column length does not match dates",
				Rows:    rows,
				Missing: []string{ticker},
			}
		}
		data.SetCol(j, col)
		mu[j] = stat.Mean(col, nil)
	}

	sigma := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(sigma, data, nil)

	return Moments{
		Tickers: append([]string(nil), tickers...),
		Mu:      mu,
		Sigma:   sigma,
	}, nil
}

// Validate rejects moments no optimizer can use: non-finite values,
// all-zero mean returns or an all-zero variance diagonal.
func (m Moments) Validate() error {
	allZero := true
	for _, v := range m.Mu {
		if !isFinite(v) {
			return &domain.DegenerateInputError{Reason: "mean returns contain NaN or Inf"}
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return &domain.DegenerateInputError{Reason: "all mean returns are zero"}
	}

	n := len(m.Mu)
	zeroVariance := true
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if !isFinite(m.Sigma.At(i, j)) {
				return &domain.DegenerateInputError{Reason: "covariance matrix contains NaN or Inf"}
			}
		}
		if m.Sigma.At(i, i) != 0 {
			zeroVariance = false
		}
	}
	if zeroVariance {
		return &domain.DegenerateInputError{Reason: "every asset has zero variance"}
	}
	return nil
}

// minEigenvalue returns the smallest eigenvalue of a symmetric matrix.
func minEigenvalue(sigma mat.Symmetric) (float64, bool) {
	var eig mat.EigenSym
	if ok := eig.Factorize(sigma, false); !ok {
		return math.NaN(), false
	}
	values := eig.Values(nil)
	lowest := math.Inf(1)
	for _, v := range values {
		if v < lowest {
			lowest = v
		}
	}
	return lowest, true
}

// Regularize returns sigma shifted by (|λmin| + 1e-8)·I when its smallest
// eigenvalue is below threshold. The input is not modified.
func Regularize(sigma *mat.SymDense, threshold float64) *mat.SymDense {
	n := sigma.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(sigma)

	lowest, ok := minEigenvalue(sigma)
	if ok && lowest >= threshold {
		return out
	}
	shift := MinEigenvalue
	if ok {
		shift += math.Abs(lowest)
	}
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+shift)
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
