package fit

import (
	"errors"
	"math"
	"testing"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/require"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
	"github.com/oxygene76/dopplerfit/pkg/doppler/kepler"
	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

func syntheticSet(t *testing.T, n int, step float64, velocity func(float64) float64) *observations.Set {
	t.Helper()

	times := make([]float64, n)
	velocities := make([]float64, n)
	uncertainties := make([]float64, n)
	instruments := make([]int, n)
	for i := range times {
		times[i] = float64(i) * step
		velocities[i] = velocity(times[i])
		uncertainties[i] = 1.0
	}

	set, err := observations.FromColumns(times, velocities, uncertainties, instruments)
	require.NoError(t, err)
	return set
}

func TestScalarObjectiveMatchesModelQuality(t *testing.T) {
	set := syntheticSet(t, 30, 0.5, func(tt float64) float64 {
		return 20 * math.Sin(tt)
	})
	solver := kepler.NewSolver()

	params := []float64{0.5, 40, 1.1, 9, 0.3, 2.5}
	_, scalar := Objectives(1, 1, set, solver)

	got, err := scalar(params)
	require.NoError(t, err)

	m, err := model.New(1, 1, params)
	require.NoError(t, err)
	m.UseSolver(solver)
	want, err := m.QualityOfFit(set)
	require.NoError(t, err)

	require.Equal(t, want, got)
}

func TestVectorObjectiveAddsOffsets(t *testing.T) {
	set, err := observations.FromColumns(
		[]float64{1, 2, 3},
		[]float64{0, 0, 0},
		[]float64{1, 1, 1},
		[]int{0, 1, 0},
	)
	require.NoError(t, err)

	vector, _ := Objectives(1, 2, set, kepler.NewSolver())

	// Zero amplitude: the prediction reduces to the instrument offsets.
	predicted, err := vector(set.Times, []float64{0, 0, 0, 10, 0, 4, -2})
	require.NoError(t, err)
	require.Equal(t, []float64{4, -2, 4}, predicted)
}

func TestSearchBoundsLayout(t *testing.T) {
	set, err := observations.FromColumns(
		[]float64{10, 20, 30},
		[]float64{-15, 5, 25},
		[]float64{1, 1, 1},
		[]int{0, 1, 0},
	)
	require.NoError(t, err)

	bounds := SearchBounds(2, 2, set, 500, 25)
	require.Len(t, bounds, 12)

	require.Equal(t, [2]float64{10, 30}, bounds[0])             // tau
	require.Equal(t, [2]float64{0, 40}, bounds[1])              // K
	require.Equal(t, [2]float64{0, 2 * math.Pi}, bounds[2])     // omega
	require.Equal(t, [2]float64{1, 500}, bounds[3])             // P
	require.Equal(t, [2]float64{0.001, 0.999}, bounds[4])       // e
	require.Equal(t, bounds[0], bounds[5])                      // planet 1 repeats the layout
	require.Equal(t, [2]float64{-25, 25}, bounds[10])           // offsets
	require.Equal(t, [2]float64{-25, 25}, bounds[11])
}

func quadratic(center []float64) ScalarObjective {
	return func(params []float64) (float64, error) {
		total := 0.0
		for i, p := range params {
			d := p - center[i]
			total += d * d
		}
		return total, nil
	}
}

func TestEvolveFindsQuadraticMinimum(t *testing.T) {
	center := []float64{1, -2, 3}
	bounds := [][2]float64{{-5, 5}, {-5, 5}, {-5, 5}}

	opts := DefaultEvolveOptions()
	opts.Seed = 42

	params, merit, err := Evolve(quadratic(center), bounds, opts)
	require.NoError(t, err)

	require.Less(t, merit, 1e-3)
	for i := range center {
		require.InDelta(t, center[i], params[i], 0.05, "parameter %d", i)
	}
}

func TestEvolveDeterministicAcrossWorkerCounts(t *testing.T) {
	center := []float64{0.5, -1.5, 2.5}
	bounds := [][2]float64{{-4, 4}, {-4, 4}, {-4, 4}}

	serial := DefaultEvolveOptions()
	serial.Seed = 7
	serial.MaxGenerations = 60
	parallel := serial
	parallel.Workers = 4

	serialParams, serialMerit, err := Evolve(quadratic(center), bounds, serial)
	require.NoError(t, err)
	parallelParams, parallelMerit, err := Evolve(quadratic(center), bounds, parallel)
	require.NoError(t, err)

	require.Equal(t, serialParams, parallelParams)
	require.Equal(t, serialMerit, parallelMerit)
}

func TestEvolveToleratesSolverDivergence(t *testing.T) {
	// Candidates in the positive half-space report solver divergence; the
	// search must absorb them as infeasible and still find the minimum on
	// the feasible side.
	objective := func(params []float64) (float64, error) {
		if params[0] > 0 {
			return 0, errorsmod.Wrap(dopplererr.ErrSolverDiverged, "synthetic candidate")
		}
		d := params[0] + 2
		return d * d, nil
	}

	opts := DefaultEvolveOptions()
	opts.Seed = 5

	params, merit, err := Evolve(objective, [][2]float64{{-5, 5}}, opts)
	require.NoError(t, err)
	require.Less(t, merit, 1e-3)
	require.InDelta(t, -2.0, params[0], 0.1)
}

func TestEvolvePropagatesNonSolverErrors(t *testing.T) {
	objective := func(params []float64) (float64, error) {
		return 0, errors.New("broken objective")
	}

	_, _, err := Evolve(objective, [][2]float64{{-1, 1}}, DefaultEvolveOptions())
	require.Error(t, err)
}

func TestEvolveRejectsDegenerateBounds(t *testing.T) {
	opts := DefaultEvolveOptions()
	_, _, err := Evolve(quadratic([]float64{0}), [][2]float64{{3, 3}}, opts)
	require.Error(t, err)

	_, _, err = Evolve(quadratic(nil), nil, opts)
	require.Error(t, err)
}

func TestArgminKeepsEarliestOnTie(t *testing.T) {
	if got := argmin([]float64{3, 1, 2, 1}); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
	if got := argmin([]float64{5}); got != 0 {
		t.Errorf("expected index 0, got %d", got)
	}
}

// lineObjective predicts a + b*t; linear in the parameters, so the
// refinement stage must reach the exact solution.
func lineObjective(times []float64, params []float64) ([]float64, error) {
	out := make([]float64, len(times))
	for i, tt := range times {
		out[i] = params[0] + params[1]*tt
	}
	return out, nil
}

func lineSet(t *testing.T, a, b float64) *observations.Set {
	t.Helper()
	return syntheticSet(t, 10, 1, func(tt float64) float64 {
		return a + b*tt
	})
}

func TestRefineSolvesLinearProblem(t *testing.T) {
	set := lineSet(t, 2, 3)

	params, uncertainties, err := Refine(lineObjective, set, []float64{0, 0}, DefaultRefineOptions())
	require.NoError(t, err)
	require.InDelta(t, 2.0, params[0], 1e-6)
	require.InDelta(t, 3.0, params[1], 1e-6)
	require.Len(t, uncertainties, 2)
	for i, u := range uncertainties {
		require.False(t, math.IsNaN(u), "uncertainty %d is NaN", i)
	}
}

func TestRefineBudgetExhaustion(t *testing.T) {
	set := lineSet(t, 2, 3)

	opts := DefaultRefineOptions()
	opts.MaxEvaluationsPerParam = 1

	params, _, err := Refine(lineObjective, set, []float64{0, 0}, opts)
	require.Error(t, err)
	require.True(t, errors.Is(err, dopplererr.ErrNotConverged))
	require.NotNil(t, params, "best-so-far parameters must survive a budget failure")
	require.Len(t, params, 2)
}

func TestRunRecoversCircularOrbit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end fit in short mode")
	}

	// Noise-free single-planet signal: K=50, P=10, e=0, no offset.
	const amplitude, period = 50.0, 10.0
	set := syntheticSet(t, 52, 0.5, func(tt float64) float64 {
		return amplitude * math.Cos(2*math.Pi*tt/period)
	})

	solver := kepler.NewSolver()
	solver.Cache = kepler.NewSolveCache()

	opts := DefaultPipelineOptions()
	opts.MaxPeriod = 50
	opts.Evolve.Seed = 3
	opts.Evolve.Workers = 2

	deModel, lmModel, err := Run(1, set, solver, opts)
	if err != nil && !errors.Is(err, dopplererr.ErrNotConverged) {
		t.Fatalf("pipeline failed: %v", err)
	}

	require.Nil(t, deModel.Uncertainties, "stage one must not produce uncertainties")
	require.NotNil(t, lmModel.Uncertainties)

	// tau and omega are degenerate for a circular orbit; only the
	// amplitude, period and fit quality are asserted.
	params := lmModel.PlanetParams(0)
	require.InDelta(t, amplitude, params[1], 0.01*amplitude, "half amplitude")
	require.InDelta(t, period, params[3], 0.01*period, "orbital period")

	quality, err := lmModel.QualityOfFit(set)
	require.NoError(t, err)
	require.Less(t, quality, 0.05)
}
