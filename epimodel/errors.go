package epimodel

import "errors"

// Error conditions reported by models.
var (
	// ErrInvalidParameters is returned when parameters or initial
	// conditions have the wrong length, contain non-finite or negative
	// values, or the initial conditions sum to zero.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrNotParameterized is returned when an operation that needs
	// parameters (Solve, Fit, Apply) runs before SetParams.
	ErrNotParameterized = errors.New("model has no parameters set")

	// ErrNoTrajectory is returned by Fetch and ExportCSV before any
	// successful solve.
	ErrNoTrajectory = errors.New("no stored trajectory")

	// ErrNotFitted is returned when a derived metric is requested
	// before the model has been parameterized.
	ErrNotFitted = errors.New("model not fitted")

	// ErrDivisionByZero is returned when a derived metric's denominator
	// is zero for the current parameters.
	ErrDivisionByZero = errors.New("metric denominator is zero")

	// ErrUnknownCompartment is returned for compartment names the
	// variant does not define.
	ErrUnknownCompartment = errors.New("unknown compartment")
)
