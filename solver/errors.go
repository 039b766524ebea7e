package solver

import "errors"

// Error conditions reported by the integrators.
var (
	// ErrBadTimeSpan is returned when a time span or output grid is empty,
	// reversed, or not strictly increasing.
	ErrBadTimeSpan = errors.New("invalid time span")

	// ErrDiverged is returned when the state becomes non-finite and no
	// further step-size reduction is possible.
	ErrDiverged = errors.New("solution diverged to non-finite values")

	// ErrStepUnderflow is returned when the adaptive controller cannot meet
	// the error tolerance even at the minimum step size.
	ErrStepUnderflow = errors.New("step size collapsed below minimum")

	// ErrMaxIters is returned when the step budget is exhausted before the
	// end of the integration interval.
	ErrMaxIters = errors.New("maximum iterations exceeded")
)
