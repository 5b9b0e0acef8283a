// Package model composes N single-body Doppler signals plus per-instrument
// velocity offsets into one radial-velocity model.
package model

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
	"github.com/oxygene76/dopplerfit/pkg/doppler/kepler"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
	"github.com/oxygene76/dopplerfit/pkg/doppler/orbit"
)

// ParamsPerPlanet is the number of orbital parameters per body:
// tau, K, omega, P, e.
const ParamsPerPlanet = 5

// Metadata records the provenance of a fitted model.
type Metadata struct {
	ObservationsFile string  `json:"observations_file,omitempty"`
	StellarJitter    float64 `json:"stellar_jitter"`
}

// Model is a composite of Planets independent orbits and Telescopes
// instrument offsets. Params is the flat parameter array: the per-planet
// 5-tuples concatenated, followed by one offset per instrument, for a total
// of 5*Planets + Telescopes values. Uncertainties, when present, matches
// Params element for element.
//
// A Model owns its parameter arrays outright; New copies its input.
type Model struct {
	Planets       int       `json:"planets"`
	Telescopes    int       `json:"telescopes"`
	Params        []float64 `json:"params"`
	Uncertainties []float64 `json:"uncertainties,omitempty"`
	Meta          Metadata  `json:"metadata"`

	solver *kepler.Solver
}

// New validates the flat parameter array length and builds a model.
func New(planets, telescopes int, params []float64) (*Model, error) {
	if planets < 1 {
		return nil, fmt.Errorf("planet count must be at least 1, got %d", planets)
	}
	if telescopes < 1 {
		return nil, fmt.Errorf("telescope count must be at least 1, got %d", telescopes)
	}
	want := ParamsPerPlanet*planets + telescopes
	if len(params) != want {
		return nil, fmt.Errorf("parameter count mismatch: want %d (5x%d planets + %d telescopes), got %d",
			want, planets, telescopes, len(params))
	}

	m := &Model{
		Planets:    planets,
		Telescopes: telescopes,
		Params:     append([]float64(nil), params...),
	}
	return m, nil
}

// UseSolver replaces the Kepler solver used for evaluation, e.g. to attach
// a shared SolveCache or a worker pool.
func (m *Model) UseSolver(s *kepler.Solver) { m.solver = s }

func (m *Model) keplerSolver() *kepler.Solver {
	if m.solver == nil {
		m.solver = kepler.NewSolver()
	}
	return m.solver
}

// ParamCount returns the length of the flat parameter array.
func (m *Model) ParamCount() int { return len(m.Params) }

// PlanetParams returns a copy of planet i's 5 orbital parameters.
func (m *Model) PlanetParams(planet int) []float64 {
	return append([]float64(nil), m.Params[planet*ParamsPerPlanet:(planet+1)*ParamsPerPlanet]...)
}

// PlanetUncertainties returns a copy of planet i's parameter uncertainties,
// or nil when the model is unfitted.
func (m *Model) PlanetUncertainties(planet int) []float64 {
	if m.Uncertainties == nil {
		return nil
	}
	return append([]float64(nil), m.Uncertainties[planet*ParamsPerPlanet:(planet+1)*ParamsPerPlanet]...)
}

// PlanetOrbit returns planet i's parameters as an orbit.Orbit.
func (m *Model) PlanetOrbit(planet int) orbit.Orbit {
	return orbit.FromParams(m.Params[planet*ParamsPerPlanet : (planet+1)*ParamsPerPlanet])
}

// Offsets returns a copy of the trailing per-instrument offsets.
func (m *Model) Offsets() []float64 {
	return append([]float64(nil), m.Params[len(m.Params)-m.Telescopes:]...)
}

// OffsetUncertainties returns a copy of the offset uncertainties, or nil
// when the model is unfitted.
func (m *Model) OffsetUncertainties() []float64 {
	if m.Uncertainties == nil {
		return nil
	}
	return append([]float64(nil), m.Uncertainties[len(m.Uncertainties)-m.Telescopes:]...)
}

// RadialVelocities returns the summed per-planet model velocities at the
// given times, without instrument offsets.
func (m *Model) RadialVelocities(times []float64) ([]float64, error) {
	total := make([]float64, len(times))
	solver := m.keplerSolver()

	for planet := 0; planet < m.Planets; planet++ {
		velocities, err := m.PlanetOrbit(planet).RadialVelocities(solver, times)
		if err != nil {
			return nil, fmt.Errorf("planet %d: %w", planet, err)
		}
		floats.Add(total, velocities)
	}
	return total, nil
}

// OffsetsOfInstruments maps each observation's instrument id to its offset
// parameter. Ids must be dense 0..Telescopes-1 integers, which the
// observations loader guarantees.
func (m *Model) OffsetsOfInstruments(instruments []int) []float64 {
	offsets := m.Params[len(m.Params)-m.Telescopes:]
	out := make([]float64, len(instruments))
	for i, id := range instruments {
		out[i] = offsets[id]
	}
	return out
}

// Residuals returns model-plus-offset minus observed for every observation.
// The sign convention is fixed; chi-square consumers depend on it.
func (m *Model) Residuals(set *observations.Set) ([]float64, error) {
	modeled, err := m.RadialVelocities(set.Times)
	if err != nil {
		return nil, err
	}

	residuals := modeled
	floats.Sub(residuals, set.Velocities)
	floats.Add(residuals, m.OffsetsOfInstruments(set.Instruments))
	return residuals, nil
}

// QualityOfFit returns the reduced chi-square of the model against the
// observation set. The fit is degenerate when the observation count does
// not exceed the parameter count by at least two.
func (m *Model) QualityOfFit(set *observations.Set) (float64, error) {
	dof := set.Count() - m.ParamCount() - 1
	if dof <= 0 {
		return 0, errorsmod.Wrapf(dopplererr.ErrDegenerateFit,
			"%d observations, %d parameters", set.Count(), m.ParamCount())
	}

	residuals, err := m.Residuals(set)
	if err != nil {
		return 0, err
	}

	chi2 := 0.0
	for i, r := range residuals {
		scaled := r / set.Uncertainties[i]
		chi2 += scaled * scaled
	}
	return chi2 / float64(dof), nil
}

// Split decomposes the composite into one single-planet model per body.
// Each sub-model carries its planet's 5 parameters plus all shared
// instrument offsets, so it can be evaluated independently against the
// same offset corrections.
func (m *Model) Split() []*Model {
	offsets := m.Offsets()

	parts := make([]*Model, m.Planets)
	for planet := 0; planet < m.Planets; planet++ {
		params := append(m.PlanetParams(planet), offsets...)
		part, _ := New(1, m.Telescopes, params)
		part.solver = m.solver
		part.Meta = m.Meta
		parts[planet] = part
	}
	return parts
}

// AddMetadata attaches the source observation file and jitter value used
// for the fit.
func (m *Model) AddMetadata(observationsFile string, stellarJitter float64) {
	m.Meta = Metadata{
		ObservationsFile: observationsFile,
		StellarJitter:    stellarJitter,
	}
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	return fmt.Sprintf("Model of %d planets and %d telescopes.", m.Planets, m.Telescopes)
}
