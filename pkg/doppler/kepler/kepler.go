// Package kepler solves Kepler's equation M = E - e*sin(E) for the
// eccentric anomaly E.
package kepler

import (
	"math"
	"sync"

	errorsmod "cosmossdk.io/errors"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
)

const (
	// DefaultTolerance is the absolute residual tolerance of the solver.
	DefaultTolerance = 1e-10

	// DefaultMaxIterations caps the Newton-Raphson loop. Hitting the cap
	// hands the solve over to the bisection fallback instead of hanging.
	DefaultMaxIterations = 100
)

// Solver holds the numerical settings for solving Kepler's equation.
// The zero value is not usable; construct with NewSolver.
type Solver struct {
	Tolerance     float64
	MaxIterations int

	// Workers sets the number of goroutines used by SolveAll.
	// Values below 2 keep the solve serial.
	Workers int

	// Cache, when non-nil, memoizes scalar solves.
	Cache *SolveCache
}

// NewSolver creates a solver with default tolerance and iteration cap.
func NewSolver() *Solver {
	return &Solver{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Workers:       1,
	}
}

// Solve returns the eccentric anomaly E satisfying M = E - e*sin(E) to
// within the solver tolerance. The mean anomaly may be any real value and
// is reduced into [0, 2*pi) first. The eccentricity must be in [0, 1).
func (s *Solver) Solve(meanAnomaly, eccentricity float64) (float64, error) {
	if s.Cache != nil {
		return s.Cache.solve(s, meanAnomaly, eccentricity)
	}
	return s.solve(meanAnomaly, eccentricity)
}

func (s *Solver) solve(meanAnomaly, eccentricity float64) (float64, error) {
	// Scale the anomaly to the range of [0, 2pi)
	meanAnomaly = math.Mod(meanAnomaly, 2*math.Pi)
	if meanAnomaly < 0 {
		meanAnomaly += 2 * math.Pi
	}

	// Newton-Raphson iteration on f(E) = M - E + e*sin(E). For high
	// eccentricity the E=M starting point overshoots near perihelion, so
	// the iteration starts from pi instead.
	eccentricAnomaly := meanAnomaly
	if eccentricity > 0.8 {
		eccentricAnomaly = math.Pi
	}
	for i := 0; i < s.MaxIterations; i++ {
		f := meanAnomaly - eccentricAnomaly + eccentricity*math.Sin(eccentricAnomaly)
		if math.Abs(f) < s.Tolerance {
			return eccentricAnomaly, nil
		}

		fPrime := eccentricity*math.Cos(eccentricAnomaly) - 1.0
		eccentricAnomaly -= f / fPrime
	}

	return s.bisect(meanAnomaly, eccentricity)
}

// bisect is the fallback when Newton-Raphson hits the iteration cap.
// f(E) = M - E + e*sin(E) is strictly decreasing on [0, 2pi] for e < 1
// with f(0) >= 0 and f(2pi) <= 0, so bisection always brackets the root;
// the divergence error is reserved for genuinely degenerate inputs.
func (s *Solver) bisect(meanAnomaly, eccentricity float64) (float64, error) {
	lo, hi := 0.0, 2*math.Pi
	for i := 0; i < 4*s.MaxIterations; i++ {
		mid := (lo + hi) / 2
		f := meanAnomaly - mid + eccentricity*math.Sin(mid)
		if math.Abs(f) < s.Tolerance {
			return mid, nil
		}
		if f > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}

	return 0, errorsmod.Wrapf(dopplererr.ErrSolverDiverged,
		"M=%g e=%g", meanAnomaly, eccentricity)
}

// SolveAll solves Kepler's equation independently for each mean anomaly,
// sharing one eccentricity. The result ordering matches the input ordering.
// With Workers > 1 the elements are solved on a goroutine pool; each element
// is independent, so only the chunk boundaries differ from the serial path.
func (s *Solver) SolveAll(meanAnomalies []float64, eccentricity float64) ([]float64, error) {
	results := make([]float64, len(meanAnomalies))

	if s.Workers < 2 || len(meanAnomalies) < 2*s.Workers {
		for i, m := range meanAnomalies {
			e, err := s.Solve(m, eccentricity)
			if err != nil {
				return nil, err
			}
			results[i] = e
		}
		return results, nil
	}

	chunk := (len(meanAnomalies) + s.Workers - 1) / s.Workers
	errs := make([]error, s.Workers)

	var wg sync.WaitGroup
	for w := 0; w < s.Workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= len(meanAnomalies) {
			break
		}
		if hi > len(meanAnomalies) {
			hi = len(meanAnomalies)
		}

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				e, err := s.Solve(meanAnomalies[i], eccentricity)
				if err != nil {
					errs[w] = err
					return
				}
				results[i] = e
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
