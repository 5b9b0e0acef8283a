package orbit

import "math"

// OutOfBoundsValue is returned (repeated to the shape of the time input)
// when orbital parameters violate their bounds. Returning a large finite
// value instead of an error keeps an enclosing least-squares optimizer
// moving away from infeasible regions without aborting the fit.
const OutOfBoundsValue = 1e10

// Bound is an optional closed interval. A nil endpoint means unbounded on
// that side.
type Bound struct {
	Min *float64
	Max *float64
}

// Bounds is an ordered list of per-parameter bounds.
type Bounds []Bound

// Contains reports whether the value satisfies the bound.
func (b Bound) Contains(value float64) bool {
	if b.Min != nil && value < *b.Min {
		return false
	}
	if b.Max != nil && value > *b.Max {
		return false
	}
	return true
}

// Check reports whether every value satisfies its positional bound.
// Values beyond the bound list are unconstrained.
func (bs Bounds) Check(values ...float64) bool {
	for i, b := range bs {
		if i >= len(values) {
			break
		}
		if !b.Contains(values[i]) {
			return false
		}
	}
	return true
}

func ptr(v float64) *float64 { return &v }

// DefaultBounds returns the physical bounds of the five orbital parameters,
// in order: tau >= 0, K >= 0, omega in [0, 2pi], P >= 0, e in [0, 1].
func DefaultBounds() Bounds {
	return Bounds{
		{Min: ptr(0)},
		{Min: ptr(0)},
		{Min: ptr(0), Max: ptr(2 * math.Pi)},
		{Min: ptr(0)},
		{Min: ptr(0), Max: ptr(1)},
	}
}

// CircularBounds returns the bounds of the circular-orbit parameters,
// in order: tau >= 0, K >= 0, P >= 0.
func CircularBounds() Bounds {
	return Bounds{
		{Min: ptr(0)},
		{Min: ptr(0)},
		{Min: ptr(0)},
	}
}

func sentinel(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = OutOfBoundsValue
	}
	return out
}
