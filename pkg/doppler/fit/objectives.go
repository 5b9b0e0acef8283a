// Package fit drives the two-stage optimization of a composite Doppler
// model against an observation set: a bounded differential-evolution
// search followed by Levenberg-Marquardt least-squares refinement.
package fit

import (
	"math"

	"github.com/oxygene76/dopplerfit/pkg/doppler/kepler"
	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

// VectorObjective evaluates a candidate parameter vector to per-observation
// predicted velocities (model plus instrument offsets). Consumed by the
// least-squares stage.
type VectorObjective func(times []float64, params []float64) ([]float64, error)

// ScalarObjective evaluates a candidate parameter vector to a single merit
// value, the reduced chi-square. Consumed by the derivative-free stage.
type ScalarObjective func(params []float64) (float64, error)

// Objectives builds both callable shapes over a fixed planet count,
// telescope count and observation set. Each call constructs a fresh model
// from the candidate vector; only the dataset is closed over.
func Objectives(planets, telescopes int, set *observations.Set, solver *kepler.Solver) (VectorObjective, ScalarObjective) {
	vector := func(times []float64, params []float64) ([]float64, error) {
		m, err := model.New(planets, telescopes, params)
		if err != nil {
			return nil, err
		}
		m.UseSolver(solver)

		velocities, err := m.RadialVelocities(times)
		if err != nil {
			return nil, err
		}

		offsets := m.OffsetsOfInstruments(set.Instruments)
		for i := range velocities {
			velocities[i] += offsets[i]
		}
		return velocities, nil
	}

	scalar := func(params []float64) (float64, error) {
		m, err := model.New(planets, telescopes, params)
		if err != nil {
			return 0, err
		}
		m.UseSolver(solver)
		return m.QualityOfFit(set)
	}

	return vector, scalar
}

// SearchBounds returns the per-parameter bound list for the global search:
// for each planet tau in [min t, max t], K in [0, velocity span],
// omega in [0, 2*pi], P in [1, maxPeriod], e in [0.001, 0.999]; then one
// [-offsetBound, offsetBound] interval per instrument offset.
func SearchBounds(planets, telescopes int, set *observations.Set, maxPeriod, offsetBound float64) [][2]float64 {
	minTime, maxTime := set.TimeSpan()
	minVel, maxVel := set.VelocitySpan()

	bounds := make([][2]float64, 0, model.ParamsPerPlanet*planets+telescopes)
	for planet := 0; planet < planets; planet++ {
		bounds = append(bounds,
			[2]float64{minTime, maxTime},          // time of perihelion passage
			[2]float64{0, maxVel - minVel},        // half amplitude of the signal
			[2]float64{0, 2 * math.Pi},            // longitude of the perihelion
			[2]float64{1, maxPeriod},              // orbital period in days
			[2]float64{0.001, 0.999},              // eccentricity
		)
	}
	for telescope := 0; telescope < telescopes; telescope++ {
		bounds = append(bounds, [2]float64{-offsetBound, offsetBound})
	}
	return bounds
}
