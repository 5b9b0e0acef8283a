// Package orbit computes the radial velocity induced by a single orbiting
// body using Doppler's method.
package orbit

import (
	"math"

	"github.com/oxygene76/dopplerfit/pkg/doppler/kepler"
)

// Orbit holds the five orbital parameters of one body.
type Orbit struct {
	Tau    float64 // time of perihelion passage, same units as observation times
	K      float64 // half amplitude of the signal, velocity units
	Omega  float64 // longitude of the perihelion, radians in [0, 2*pi]
	Period float64 // orbital period, time units
	Ecc    float64 // eccentricity, [0, 1)
}

// Params returns the parameters as a flat 5-element slice in the canonical
// order tau, K, omega, P, e.
func (o Orbit) Params() []float64 {
	return []float64{o.Tau, o.K, o.Omega, o.Period, o.Ecc}
}

// FromParams builds an Orbit from a 5-element slice in canonical order.
func FromParams(params []float64) Orbit {
	return Orbit{
		Tau:    params[0],
		K:      params[1],
		Omega:  params[2],
		Period: params[3],
		Ecc:    params[4],
	}
}

// RadialVelocities computes the predicted radial velocity at each time,
// validating the parameters against DefaultBounds first.
func (o Orbit) RadialVelocities(solver *kepler.Solver, times []float64) ([]float64, error) {
	return o.RadialVelocitiesWithin(solver, times, DefaultBounds())
}

// RadialVelocitiesWithin is RadialVelocities with caller-supplied bounds.
// On any bound violation it returns the sentinel value repeated to the
// length of the time slice, with no error: out-of-bound candidates are an
// expected part of an optimizer's search dynamics.
func (o Orbit) RadialVelocitiesWithin(solver *kepler.Solver, times []float64, bounds Bounds) ([]float64, error) {
	if !bounds.Check(o.Tau, o.K, o.Omega, o.Period, o.Ecc) {
		return sentinel(len(times)), nil
	}

	// Convertion of the orbit length to the radian angle
	meanMotion := 2 * math.Pi / o.Period

	// Time related mean anomaly of the orbit
	meanAnomalies := make([]float64, len(times))
	for i, t := range times {
		meanAnomalies[i] = positiveMod(meanMotion*(t-o.Tau), 2*math.Pi)
	}

	// Resolve the eccentric anomaly from the Kepler equation
	eccentricAnomalies, err := solver.SolveAll(meanAnomalies, o.Ecc)
	if err != nil {
		return nil, err
	}

	velocities := make([]float64, len(times))
	for i, e := range eccentricAnomalies {
		velocities[i] = o.velocityFromEccentricAnomaly(e)
	}
	return velocities, nil
}

// RadialVelocity is the scalar form of RadialVelocities. A bound violation
// yields the sentinel value.
func (o Orbit) RadialVelocity(solver *kepler.Solver, t float64) (float64, error) {
	if !DefaultBounds().Check(o.Tau, o.K, o.Omega, o.Period, o.Ecc) {
		return OutOfBoundsValue, nil
	}

	meanMotion := 2 * math.Pi / o.Period
	meanAnomaly := positiveMod(meanMotion*(t-o.Tau), 2*math.Pi)

	eccentricAnomaly, err := solver.Solve(meanAnomaly, o.Ecc)
	if err != nil {
		return 0, err
	}
	return o.velocityFromEccentricAnomaly(eccentricAnomaly), nil
}

// velocityFromEccentricAnomaly applies the true-anomaly conversion and the
// Doppler formula V(t) = K * (cos(omega + v(t)) + e * cos(omega)).
func (o Orbit) velocityFromEccentricAnomaly(eccentricAnomaly float64) float64 {
	// So-called "true anomaly" v(t)
	trueAnomaly := 2.0 * math.Atan(
		math.Sqrt((1.0+o.Ecc)/(1.0-o.Ecc))*math.Tan(eccentricAnomaly/2.0),
	)

	return o.K * (math.Cos(o.Omega+trueAnomaly) + o.Ecc*math.Cos(o.Omega))
}

// CircularOrbit is the special case of a perfectly circular orbit (e = 0);
// the longitude of the perihelion drops out of the velocity formula.
type CircularOrbit struct {
	Tau    float64
	K      float64
	Period float64
}

// RadialVelocities computes the circular-orbit velocities, validating the
// parameters against CircularBounds. The pipeline matches the eccentric
// case with e fixed to zero: V(t) = K * cos(v(t)).
func (c CircularOrbit) RadialVelocities(solver *kepler.Solver, times []float64) ([]float64, error) {
	if !CircularBounds().Check(c.Tau, c.K, c.Period) {
		return sentinel(len(times)), nil
	}

	meanMotion := 2 * math.Pi / c.Period

	meanAnomalies := make([]float64, len(times))
	for i, t := range times {
		meanAnomalies[i] = positiveMod(meanMotion*(t-c.Tau), 2*math.Pi)
	}

	eccentricAnomalies, err := solver.SolveAll(meanAnomalies, 0.0)
	if err != nil {
		return nil, err
	}

	velocities := make([]float64, len(times))
	for i, e := range eccentricAnomalies {
		trueAnomaly := 2.0 * math.Atan(math.Tan(e/2.0))
		velocities[i] = c.K * math.Cos(trueAnomaly)
	}
	return velocities, nil
}

func positiveMod(x, y float64) float64 {
	m := math.Mod(x, y)
	if m < 0 {
		m += y
	}
	return m
}
