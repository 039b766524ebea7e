package fit

import (
	"errors"
	"fmt"
)

// Error conditions reported by the fitter.
var (
	// ErrInvalidObservation is returned when the observation vectors have
	// mismatched lengths, contain non-finite values, or the observation
	// times decrease.
	ErrInvalidObservation = errors.New("invalid observations")

	// ErrInsufficientData is returned when there are fewer observations
	// than free parameters.
	ErrInsufficientData = errors.New("fewer observations than free parameters")

	// ErrDidNotConverge is returned when the iteration budget is exhausted
	// before the convergence tolerance is met. The error carries the last
	// iterate; see ConvergenceError.
	ErrDidNotConverge = errors.New("did not converge")

	// ErrEmptyMask is returned when the parameter mask frees no entries.
	ErrEmptyMask = errors.New("no free parameters in mask")
)

// ConvergenceError wraps ErrDidNotConverge and carries the last iterate
// so callers can inspect (and deliberately accept) a partial fit:
//
//	res, err := fit.Minimize(forward, t, y, p0, nil)
//	var cerr *fit.ConvergenceError
//	if errors.As(err, &cerr) {
//	    res = cerr.Result // last iterate, Converged == false
//	}
type ConvergenceError struct {
	Result *Result
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("fit: did not converge after %d iterations (final loss %g)",
		e.Result.Iterations, e.Result.FinalLoss)
}

func (e *ConvergenceError) Unwrap() error { return ErrDidNotConverge }
