package solver

import (
	"fmt"
	"math"
)

// SteadyOptions configures steady-state detection during solving.
type SteadyOptions struct {
	// Tolerance on the maximum absolute derivative component
	Tolerance float64
	// Number of consecutive checks below tolerance required
	ConsecutiveSteps int
	// Minimum time before checking for steady state
	MinTime float64
	// Check interval (check every N accepted steps, 0 = every step)
	CheckInterval int
}

// DefaultSteadyOptions returns sensible defaults for steady-state
// detection. For epidemic models this corresponds to burnout: the
// infectious compartment has stopped changing.
func DefaultSteadyOptions() *SteadyOptions {
	return &SteadyOptions{
		Tolerance:        1e-6,
		ConsecutiveSteps: 5,
		MinTime:          0.1,
		CheckInterval:    10,
	}
}

// StrictSteadyOptions returns options for high-confidence steady-state
// detection, at the cost of integrating further past the transient.
func StrictSteadyOptions() *SteadyOptions {
	return &SteadyOptions{
		Tolerance:        1e-9,
		ConsecutiveSteps: 10,
		MinTime:          1.0,
		CheckInterval:    1,
	}
}

// SteadyResult contains information about steady-state detection.
type SteadyResult struct {
	Reached bool      // Whether a steady state was detected
	Time    float64   // Time at which it was detected (or Tf)
	State   []float64 // State at that time
	MaxRate float64   // Maximum |du/dt| component at that state
	Steps   int       // Accepted steps taken
}

// SolveUntilSteady integrates until the system reaches a steady state
// or the time span is exhausted. Every accepted step is recorded, as
// with Solve. Running out of the step budget before either happens is
// an error; merely not reaching steady state by Tf is not.
func SolveUntilSteady(prob *Problem, method *Solver, opts *Options, stOpts *SteadyOptions) (*Solution, *SteadyResult, error) {
	if method == nil {
		method = Tsit5()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if stOpts == nil {
		stOpts = DefaultSteadyOptions()
	}
	if err := prob.validate(); err != nil {
		return nil, nil, err
	}

	tcur := prob.T0
	ucur := append([]float64(nil), prob.U0...)
	tOut := []float64{tcur}
	uOut := [][]float64{append([]float64(nil), ucur...)}
	dtcur := opts.Dt
	nsteps := 0
	consecutiveSmall := 0
	checkCounter := 0

	result := &SteadyResult{}

	for tcur < prob.Tf {
		if nsteps >= opts.Maxiters {
			return nil, nil, fmt.Errorf("solver: stopped at t=%g of %g after %d steps: %w",
				tcur, prob.Tf, nsteps, ErrMaxIters)
		}
		if tcur+dtcur > prob.Tf {
			dtcur = prob.Tf - tcur
		}

		unext, errEst := rkStep(prob.F, method, tcur, ucur, dtcur, opts.Abstol, opts.Reltol)

		if !finite(unext) {
			if !opts.Adaptive || dtcur <= opts.Dtmin {
				return nil, nil, fmt.Errorf("solver: non-finite state at t=%g: %w", tcur, ErrDiverged)
			}
			dtcur = math.Max(opts.Dtmin, dtcur*0.1)
			continue
		}

		if opts.Adaptive && errEst > 1.0 {
			if dtcur <= opts.Dtmin {
				return nil, nil, fmt.Errorf("solver: tolerance unmet at t=%g with dt=%g: %w",
					tcur, dtcur, ErrStepUnderflow)
			}
			dtcur = math.Max(opts.Dtmin, dtcur*stepFactor(errEst, method.Order))
			continue
		}

		tcur += dtcur
		ucur = unext
		tOut = append(tOut, tcur)
		uOut = append(uOut, append([]float64(nil), ucur...))
		nsteps++

		checkCounter++
		if tcur >= prob.T0+stOpts.MinTime && (stOpts.CheckInterval == 0 || checkCounter >= stOpts.CheckInterval) {
			checkCounter = 0
			maxRate := maxAbs(prob.F(tcur, ucur))
			if maxRate < stOpts.Tolerance {
				consecutiveSmall++
				if consecutiveSmall >= stOpts.ConsecutiveSteps {
					result.Reached = true
					result.Time = tcur
					result.State = append([]float64(nil), ucur...)
					result.MaxRate = maxRate
					result.Steps = nsteps
					break
				}
			} else {
				consecutiveSmall = 0
			}
		}

		if opts.Adaptive {
			dtcur = math.Min(opts.Dtmax, math.Max(opts.Dtmin, dtcur*stepFactor(errEst, method.Order)))
		}
	}

	result.Steps = nsteps
	if !result.Reached {
		result.Time = tcur
		result.State = append([]float64(nil), ucur...)
		result.MaxRate = maxAbs(prob.F(tcur, ucur))
	}

	return &Solution{T: tOut, U: uOut, StateLabels: prob.StateLabels}, result, nil
}

// IsSteady reports whether the derivative at the given state is below
// tolerance in every component.
func IsSteady(prob *Problem, t float64, state []float64, tolerance float64) bool {
	return maxAbs(prob.F(t, state)) < tolerance
}

func maxAbs(du []float64) float64 {
	m := 0.0
	for _, v := range du {
		if abs := math.Abs(v); abs > m {
			m = abs
		}
	}
	return m
}
