package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// Capability names reported by CheckCapabilities
const (
	CapabilitySolver      = "nonlinear solver"
	CapabilityEigen       = "symmetric eigendecomposition"
	capabilityProbeAbsTol = 1e-6
)

// CheckCapabilities probes the numerical routines every optimizer depends on
// with trivial problems. It is run once when the service is built.
func CheckCapabilities() (err error) {
	capability := CapabilityEigen
	defer func() {
		if r := recover(); r != nil {
			err = &domain.DependencyUnavailableError{
				Capability: capability,
				Err:        fmt.Errorf("probe panicked: %v", r),
			}
		}
	}()

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(2, []float64{2, 0, 0, 1}), false) {
		return &domain.DependencyUnavailableError{Capability: capability}
	}

	capability = CapabilitySolver
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return (x[0] - 1) * (x[0] - 1)
		},
		Grad: func(grad, x []float64) {
			grad[0] = 2 * (x[0] - 1)
		},
	}
	result, solveErr := optimize.Minimize(problem, []float64{0}, nil, &optimize.BFGS{})
	if solveErr != nil {
		return &domain.DependencyUnavailableError{Capability: capability, Err: solveErr}
	}
	if math.Abs(result.X[0]-1) > capabilityProbeAbsTol {
		return &domain.DependencyUnavailableError{
			Capability: capability,
			Err:        fmt.Errorf("probe converged to %g, expected 1", result.X[0]),
		}
	}
	return nil
}
