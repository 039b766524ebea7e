// Package fit estimates model parameters from observed time series by
// nonlinear least squares.
//
// The fitter is model-agnostic: it optimizes through a Forward function
// that maps a trial parameter vector to predicted values at the
// observation times. It never mutates the model that built the Forward;
// callers inspect the returned Result and commit it explicitly.
package fit

import (
	"fmt"
	"math"

	"github.com/epifit-xyz/go-epifit/solver"
)

// Forward produces the model's predicted fit-output values at times t
// for a trial parameter vector p. One call means one full forward
// simulation. Returning an error marks the trial infeasible.
type Forward func(p, t []float64) ([]float64, error)

// Options configures Minimize.
type Options struct {
	// Mask marks which parameters are free (true) versus held fixed.
	// Nil frees only the first parameter.
	Mask []bool
	// Bounds gives [low, high] per free parameter, in mask order.
	// Nil means [0, 100] for every free parameter.
	Bounds [][2]float64
	// Method selects the optimizer: "levenberg-marquardt" (default)
	// or "nelder-mead".
	Method string
	// MaxIters caps optimizer iterations.
	MaxIters int
	// Tolerance is the convergence threshold: relative cost reduction
	// for Levenberg-Marquardt, simplex value spread for Nelder-Mead.
	Tolerance float64
	// Loss is the diagnostic loss reported in Result.InitialLoss and
	// Result.FinalLoss, and the objective for Nelder-Mead. Defaults to
	// MSELoss. Levenberg-Marquardt always minimizes the sum of squared
	// residuals regardless of Loss.
	Loss LossFunc
	// Solver overrides integrator options in Forward builders that
	// honor it (see epimodel.Model.Fit). Minimize itself does not
	// consult it.
	Solver *solver.Options
}

// DefaultOptions returns default fitting options.
func DefaultOptions() *Options {
	return &Options{
		Method:    "levenberg-marquardt",
		MaxIters:  1000,
		Tolerance: 1e-8,
		Loss:      MSELoss,
	}
}

// Result contains the outcome of a fit. Params is the full parameter
// vector: free entries carry fitted values, fixed entries are
// bit-identical to the input guess.
type Result struct {
	Params      []float64   // Full parameter vector
	Mask        []bool      // Mask the fit ran with
	Covariance  [][]float64 // Free-parameter covariance (LM only, nil otherwise)
	InitialLoss float64     // Loss at the initial guess
	FinalLoss   float64     // Loss at the final parameters
	Iterations  int         // Optimizer iterations performed
	Converged   bool        // Whether the tolerance was met
	Method      string      // Optimizer that produced the result
}

// Minimize fits the free entries of p0 so that forward(p, tObs) tracks
// yObs. tObs must be finite and non-decreasing (duplicates allowed,
// residualized independently); yObs must be finite and the same length.
// Initial free values are projected into their bounds before the first
// trial.
//
// A non-converged run returns the last iterate wrapped in a
// *ConvergenceError (errors.Is ErrDidNotConverge), never a silent
// partial success.
func Minimize(forward Forward, tObs, yObs, p0 []float64, opts *Options) (*Result, error) {
	if forward == nil {
		return nil, fmt.Errorf("fit: nil forward function")
	}
	if len(p0) == 0 {
		return nil, fmt.Errorf("fit: empty parameter vector")
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	mask := opts.Mask
	if mask == nil {
		mask = make([]bool, len(p0))
		mask[0] = true
	}
	if len(mask) != len(p0) {
		return nil, fmt.Errorf("fit: mask has %d entries for %d parameters", len(mask), len(p0))
	}
	var freeIdx []int
	for i, free := range mask {
		if free {
			freeIdx = append(freeIdx, i)
		}
	}
	if len(freeIdx) == 0 {
		return nil, fmt.Errorf("fit: %w", ErrEmptyMask)
	}

	if err := validateObservations(tObs, yObs); err != nil {
		return nil, err
	}
	if len(tObs) < len(freeIdx) {
		return nil, fmt.Errorf("fit: %d observations for %d free parameters: %w",
			len(tObs), len(freeIdx), ErrInsufficientData)
	}

	bounds, err := effectiveBounds(opts.Bounds, len(freeIdx))
	if err != nil {
		return nil, err
	}

	maxIters := opts.MaxIters
	if maxIters <= 0 {
		maxIters = DefaultOptions().MaxIters
	}
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultOptions().Tolerance
	}
	loss := opts.Loss
	if loss == nil {
		loss = MSELoss
	}

	// Pack a free vector back into the full parameter vector.
	pack := func(x []float64) []float64 {
		full := append([]float64(nil), p0...)
		for k, idx := range freeIdx {
			full[idx] = x[k]
		}
		return full
	}
	predict := func(x []float64) ([]float64, error) {
		return forward(pack(x), tObs)
	}

	x0 := make([]float64, len(freeIdx))
	for k, idx := range freeIdx {
		x0[k] = clamp(p0[idx], bounds[k][0], bounds[k][1])
	}

	pred0, err := predict(x0)
	if err != nil {
		return nil, fmt.Errorf("fit: initial evaluation: %w", err)
	}
	if len(pred0) != len(yObs) {
		return nil, fmt.Errorf("fit: forward returned %d values for %d observations", len(pred0), len(yObs))
	}
	initialLoss := loss(pred0, yObs)

	method := opts.Method
	if method == "" {
		method = "levenberg-marquardt"
	}

	var (
		xBest     []float64
		cov       [][]float64
		iters     int
		converged bool
	)
	switch method {
	case "levenberg-marquardt", "lm":
		method = "levenberg-marquardt"
		residFn := func(x []float64) ([]float64, error) {
			pred, err := predict(x)
			if err != nil {
				return nil, err
			}
			r := make([]float64, len(yObs))
			for i := range yObs {
				r[i] = pred[i] - yObs[i]
			}
			return r, nil
		}
		xBest, cov, iters, converged, err = levenbergMarquardt(residFn, x0, bounds, maxIters, tolerance)
		if err != nil {
			return nil, err
		}
	case "nelder-mead", "nm":
		method = "nelder-mead"
		objective := func(x []float64) float64 {
			pred, err := predict(projected(x, bounds))
			if err != nil {
				return math.Inf(1)
			}
			return loss(pred, yObs)
		}
		xBest, iters, converged = nelderMead(objective, x0, maxIters, tolerance)
		xBest = projected(xBest, bounds)
	default:
		return nil, fmt.Errorf("fit: unknown optimization method: %s", opts.Method)
	}

	predBest, err := predict(xBest)
	if err != nil {
		return nil, fmt.Errorf("fit: final evaluation: %w", err)
	}

	result := &Result{
		Params:      pack(xBest),
		Mask:        append([]bool(nil), mask...),
		Covariance:  cov,
		InitialLoss: initialLoss,
		FinalLoss:   loss(predBest, yObs),
		Iterations:  iters,
		Converged:   converged,
		Method:      method,
	}
	if !converged {
		return nil, &ConvergenceError{Result: result}
	}
	return result, nil
}

func validateObservations(tObs, yObs []float64) error {
	if len(tObs) != len(yObs) {
		return fmt.Errorf("fit: %d times for %d values: %w", len(tObs), len(yObs), ErrInvalidObservation)
	}
	for i, t := range tObs {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("fit: non-finite observation time at index %d: %w", i, ErrInvalidObservation)
		}
		if i > 0 && t < tObs[i-1] {
			return fmt.Errorf("fit: observation times decrease at index %d: %w", i, ErrInvalidObservation)
		}
	}
	for i, y := range yObs {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return fmt.Errorf("fit: non-finite observation value at index %d: %w", i, ErrInvalidObservation)
		}
	}
	return nil
}

func effectiveBounds(bounds [][2]float64, nfree int) ([][2]float64, error) {
	if bounds == nil {
		out := make([][2]float64, nfree)
		for i := range out {
			out[i] = [2]float64{0, 100}
		}
		return out, nil
	}
	if len(bounds) != nfree {
		return nil, fmt.Errorf("fit: %d bounds for %d free parameters", len(bounds), nfree)
	}
	for i, b := range bounds {
		if math.IsNaN(b[0]) || math.IsNaN(b[1]) || b[0] >= b[1] {
			return nil, fmt.Errorf("fit: invalid bounds [%g, %g] for free parameter %d", b[0], b[1], i)
		}
	}
	return bounds, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func projected(x []float64, bounds [][2]float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = clamp(v, bounds[i][0], bounds[i][1])
	}
	return out
}
