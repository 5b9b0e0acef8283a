// Package dopplererr defines the error taxonomy of the fitting pipeline.
//
// Bound violations during model evaluation are deliberately absent here:
// they are absorbed locally by the out-of-bounds sentinel value and never
// surface as errors (see pkg/doppler/orbit).
package dopplererr

import (
	errorsmod "cosmossdk.io/errors"
)

const codespace = "doppler"

var (
	// ErrNoObservations is returned when an observation table contains no usable rows.
	ErrNoObservations = errorsmod.Register(codespace, 2, "observation table contains no usable rows")

	// ErrDegenerateFit is returned when the observation count is too small
	// relative to the parameter count for a meaningful reduced chi-square.
	ErrDegenerateFit = errorsmod.Register(codespace, 3, "observation count too small for parameter count")

	// ErrNotConverged is returned when the least-squares refinement exhausts
	// its evaluation budget before meeting tolerance. The best-so-far
	// parameter vector is still returned alongside it.
	ErrNotConverged = errorsmod.Register(codespace, 4, "least-squares refinement did not converge within its evaluation budget")

	// ErrSolverDiverged is returned when the Newton-Raphson iteration for
	// Kepler's equation fails to reach tolerance within its iteration cap.
	ErrSolverDiverged = errorsmod.Register(codespace, 5, "kepler solver failed to reach tolerance")
)
