package fit

import (
	"log"
	"math"

	errorsmod "cosmossdk.io/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

// RefineOptions configures the Levenberg-Marquardt stage.
type RefineOptions struct {
	// MaxEvaluationsPerParam bounds the total number of objective
	// evaluations (including Jacobian columns) at
	// MaxEvaluationsPerParam * parameterCount.
	MaxEvaluationsPerParam int

	// InitialDamping is the starting Levenberg-Marquardt lambda.
	InitialDamping float64

	// CostTolerance stops the iteration when the relative cost decrease
	// of an accepted step falls below it.
	CostTolerance float64

	// StepTolerance stops the iteration when the accepted step length
	// becomes negligible relative to the parameter vector.
	StepTolerance float64
}

// DefaultRefineOptions returns the stage-two defaults: 500 objective
// evaluations per parameter and the usual damping schedule.
func DefaultRefineOptions() RefineOptions {
	return RefineOptions{
		MaxEvaluationsPerParam: 500,
		InitialDamping:         1e-3,
		CostTolerance:          1e-10,
		StepTolerance:          1e-10,
	}
}

// Refine runs a weighted Levenberg-Marquardt least-squares refinement of
// the vector objective against the observation set, seeded at initial.
// It returns the refined parameter vector and the per-parameter
// uncertainties (square roots of the covariance diagonal, with the
// covariance scaled by the reduced chi-square).
//
// When the evaluation budget runs out before convergence the best-so-far
// parameters are returned together with a convergence-failure error; the
// caller decides whether to retry or accept them.
func Refine(objective VectorObjective, set *observations.Set, initial []float64, opts RefineOptions) ([]float64, []float64, error) {
	m := set.Count()
	n := len(initial)

	budget := opts.MaxEvaluationsPerParam * n
	evaluations := 0

	// Weighted residuals: (prediction - observation) / uncertainty
	residuals := func(params []float64) ([]float64, error) {
		evaluations++
		predicted, err := objective(set.Times, params)
		if err != nil {
			return nil, err
		}
		r := make([]float64, m)
		for i := range r {
			r[i] = (predicted[i] - set.Velocities[i]) / set.Uncertainties[i]
		}
		return r, nil
	}

	params := append([]float64(nil), initial...)
	r, err := residuals(params)
	if err != nil {
		return nil, nil, err
	}
	cost := sumSquares(r)

	damping := opts.InitialDamping
	converged := false
	budgetExceeded := false

	for !converged && !budgetExceeded {
		if evaluations >= budget {
			budgetExceeded = true
			break
		}

		jac, err := jacobian(residuals, params, r)
		if err != nil {
			return nil, nil, err
		}

		// Normal equations: (J^T J + lambda diag(J^T J)) delta = -J^T r
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), mat.NewVecDense(m, r))

		stepped := false
		for damping <= 1e12 {
			if evaluations >= budget {
				budgetExceeded = true
				break
			}

			var damped mat.Dense
			damped.CloneFrom(&jtj)
			for j := 0; j < n; j++ {
				damped.Set(j, j, jtj.At(j, j)*(1+damping))
			}

			var delta mat.VecDense
			if err := delta.SolveVec(&damped, negated(&jtr)); err != nil {
				damping *= 10
				continue
			}

			trial := make([]float64, n)
			for j := range trial {
				trial[j] = params[j] + delta.AtVec(j)
			}

			trialResiduals, err := residuals(trial)
			if err != nil {
				return nil, nil, err
			}
			trialCost := sumSquares(trialResiduals)

			if trialCost < cost {
				stepLen := mat.Norm(&delta, 2)
				if cost-trialCost <= opts.CostTolerance*math.Max(cost, 1e-30) ||
					stepLen <= opts.StepTolerance*(norm(params)+opts.StepTolerance) {
					converged = true
				}
				params = trial
				r = trialResiduals
				cost = trialCost
				damping = math.Max(damping/10, 1e-12)
				stepped = true
				break
			}

			damping *= 10
		}

		if !stepped && !budgetExceeded {
			// No damping level produced a downhill step: local minimum.
			converged = true
		}
	}

	uncertainties, err := covarianceUncertainties(residuals, params, r, cost, m, n)
	if err != nil {
		return nil, nil, err
	}

	if !converged {
		return params, uncertainties, errorsmod.Wrapf(dopplererr.ErrNotConverged,
			"%d evaluations for %d parameters", evaluations, n)
	}
	return params, uncertainties, nil
}

// jacobian computes the forward-difference Jacobian of the residual vector.
func jacobian(residuals func([]float64) ([]float64, error), params, base []float64) (*mat.Dense, error) {
	m := len(base)
	n := len(params)
	jac := mat.NewDense(m, n, nil)

	sqrtEps := math.Sqrt(2.220446049250313e-16)
	for j := 0; j < n; j++ {
		step := sqrtEps * math.Max(math.Abs(params[j]), 1)

		shifted := append([]float64(nil), params...)
		shifted[j] += step

		r, err := residuals(shifted)
		if err != nil {
			return nil, err
		}
		for i := 0; i < m; i++ {
			jac.Set(i, j, (r[i]-base[i])/step)
		}
	}
	return jac, nil
}

// covarianceUncertainties inverts J^T J at the solution and converts the
// diagonal to standard errors, scaling by the reduced chi-square so that
// the uncertainty weighting is relative rather than absolute.
func covarianceUncertainties(residuals func([]float64) ([]float64, error), params, base []float64, cost float64, m, n int) ([]float64, error) {
	jac, err := jacobian(residuals, params, base)
	if err != nil {
		return nil, err
	}

	var jtj mat.Dense
	jtj.Mul(jac.T(), jac)

	var cov mat.Dense
	if err := cov.Inverse(&jtj); err != nil {
		log.Printf("Warning: covariance matrix is singular, uncertainties are unbounded")
		unbounded := make([]float64, n)
		for j := range unbounded {
			unbounded[j] = math.Inf(1)
		}
		return unbounded, nil
	}

	scale := 1.0
	if m > n {
		scale = cost / float64(m-n)
	}

	uncertainties := make([]float64, n)
	for j := 0; j < n; j++ {
		uncertainties[j] = math.Sqrt(cov.At(j, j) * scale)
	}
	return uncertainties, nil
}

func sumSquares(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v * v
	}
	return total
}

func norm(values []float64) float64 {
	return math.Sqrt(sumSquares(values))
}

func negated(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.ScaleVec(-1, v)
	return out
}
