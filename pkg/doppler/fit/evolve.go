package fit

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
	"github.com/oxygene76/dopplerfit/pkg/doppler/orbit"
)

// EvolveOptions configures the differential-evolution stage.
type EvolveOptions struct {
	// PopulationSize is the population multiplier: the population holds
	// PopulationSize * parameterCount members.
	PopulationSize int

	// MaxGenerations caps the evolution loop.
	MaxGenerations int

	// MutationMin and MutationMax bound the per-generation dithered
	// mutation factor.
	MutationMin float64
	MutationMax float64

	// Recombination is the crossover probability.
	Recombination float64

	// Tolerance stops the search when the population energies have
	// collapsed: stddev(energies) <= Tolerance * |mean(energies)|.
	Tolerance float64

	// Seed makes the search reproducible.
	Seed int64

	// Workers sets the number of goroutines evaluating candidates.
	// Results are identical for any worker count.
	Workers int
}

// DefaultEvolveOptions mirrors the usual differential-evolution settings:
// best/1/bin strategy, dithered mutation in [0.5, 1.0), crossover 0.7.
func DefaultEvolveOptions() EvolveOptions {
	return EvolveOptions{
		PopulationSize: 15,
		MaxGenerations: 1000,
		MutationMin:    0.5,
		MutationMax:    1.0,
		Recombination:  0.7,
		Tolerance:      0.01,
		Seed:           1,
		Workers:        1,
	}
}

// Evolve minimizes the scalar objective over the bound box with a
// best/1/bin differential-evolution search. It returns the best parameter
// vector found and its merit value.
//
// Trials for one generation are built against the generation-start
// population, then evaluated, then applied; the outcome therefore does not
// depend on the worker count, and equal merits resolve to the earliest
// population index.
func Evolve(objective ScalarObjective, bounds [][2]float64, opts EvolveOptions) ([]float64, float64, error) {
	dim := len(bounds)
	if dim == 0 {
		return nil, 0, fmt.Errorf("no parameters to optimize")
	}
	for i, b := range bounds {
		if !(b[0] < b[1]) {
			return nil, 0, fmt.Errorf("degenerate bound interval [%g, %g] at parameter %d", b[0], b[1], i)
		}
	}

	popSize := opts.PopulationSize * dim
	if popSize < 5 {
		popSize = 5
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	objective = infeasibleGuard(objective)

	// Random initialization within the bound box
	population := make([][]float64, popSize)
	for i := range population {
		member := make([]float64, dim)
		for j, b := range bounds {
			member[j] = b[0] + rng.Float64()*(b[1]-b[0])
		}
		population[i] = member
	}

	energies, err := evaluateAll(objective, population, opts.Workers)
	if err != nil {
		return nil, 0, err
	}
	best := argmin(energies)

	trials := make([][]float64, popSize)
	for generation := 0; generation < opts.MaxGenerations; generation++ {
		mutation := opts.MutationMin + rng.Float64()*(opts.MutationMax-opts.MutationMin)

		for i := range population {
			r1, r2 := pickDistinct(rng, popSize, i)

			trial := make([]float64, dim)
			forced := rng.Intn(dim)
			for j := 0; j < dim; j++ {
				if j == forced || rng.Float64() < opts.Recombination {
					trial[j] = population[best][j] + mutation*(population[r1][j]-population[r2][j])
				} else {
					trial[j] = population[i][j]
				}
				trial[j] = clamp(trial[j], bounds[j][0], bounds[j][1])
			}
			trials[i] = trial
		}

		trialEnergies, err := evaluateAll(objective, trials, opts.Workers)
		if err != nil {
			return nil, 0, err
		}

		for i := range population {
			if trialEnergies[i] < energies[i] {
				population[i] = trials[i]
				energies[i] = trialEnergies[i]
			}
		}
		best = argmin(energies)

		mean := stat.Mean(energies, nil)
		if stat.StdDev(energies, nil) <= opts.Tolerance*math.Abs(mean) {
			break
		}
	}

	result := append([]float64(nil), population[best]...)
	return result, energies[best], nil
}

// infeasibleGuard absorbs Kepler-solver divergence during candidate
// evaluation: a candidate whose orbit the solver cannot handle gets the
// out-of-bounds merit and the search moves away from it, the same way
// bound violations are absorbed by the model's sentinel velocities.
// Every other error still aborts the search.
func infeasibleGuard(objective ScalarObjective) ScalarObjective {
	return func(params []float64) (float64, error) {
		merit, err := objective(params)
		if err != nil {
			if errors.Is(err, dopplererr.ErrSolverDiverged) {
				return orbit.OutOfBoundsValue, nil
			}
			return 0, err
		}
		return merit, nil
	}
}

func evaluateAll(objective ScalarObjective, candidates [][]float64, workers int) ([]float64, error) {
	energies := make([]float64, len(candidates))

	if workers < 2 || len(candidates) < 2*workers {
		for i, candidate := range candidates {
			e, err := objective(candidate)
			if err != nil {
				return nil, err
			}
			energies[i] = e
		}
		return energies, nil
	}

	chunk := (len(candidates) + workers - 1) / workers
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= len(candidates) {
			break
		}
		if hi > len(candidates) {
			hi = len(candidates)
		}

		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				e, err := objective(candidates[i])
				if err != nil {
					errs[w] = err
					return
				}
				energies[i] = e
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return energies, nil
}

// argmin returns the index of the smallest energy, keeping the earliest
// index on ties.
func argmin(energies []float64) int {
	best := 0
	for i, e := range energies {
		if e < energies[best] {
			best = i
		}
	}
	return best
}

func pickDistinct(rng *rand.Rand, n, exclude int) (int, int) {
	r1 := rng.Intn(n)
	for r1 == exclude {
		r1 = rng.Intn(n)
	}
	r2 := rng.Intn(n)
	for r2 == exclude || r2 == r1 {
		r2 = rng.Intn(n)
	}
	return r1, r2
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
