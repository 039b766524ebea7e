package solver

import (
	"fmt"
	"math"
)

// ImplicitEuler solves using the backward Euler method.
// This is an A-stable implicit method suitable for stiff ODEs.
// It uses fixed-point iteration to solve the implicit equation.
//
// For stiff regimes where explicit methods (Tsit5, RK45) require
// extremely small time steps, such as containment dynamics with removal
// rates far above the infection rate, implicit stepping can be much
// more efficient.
func ImplicitEuler(prob *Problem, opts *Options) (*Solution, error) {
	if opts == nil {
		opts = StiffOptions()
	}
	if err := prob.validate(); err != nil {
		return nil, err
	}

	n := len(prob.U0)
	tcur := prob.T0
	ucur := append([]float64(nil), prob.U0...)
	tOut := []float64{tcur}
	uOut := [][]float64{append([]float64(nil), ucur...)}
	nsteps := 0

	// Fixed-point iteration parameters
	maxFixedPoint := 50
	fixedPointTol := opts.Abstol * 10

	for tcur < prob.Tf {
		if nsteps >= opts.Maxiters {
			return nil, fmt.Errorf("solver: stopped at t=%g of %g after %d steps: %w",
				tcur, prob.Tf, nsteps, ErrMaxIters)
		}
		dtcur := opts.Dt
		if tcur+dtcur > prob.Tf {
			dtcur = prob.Tf - tcur
		}
		tnext := tcur + dtcur

		// Backward Euler: u_{n+1} = u_n + dt * f(t_{n+1}, u_{n+1})
		// solved by fixed-point iteration u^{k+1} = u_n + dt * f(t_{n+1}, u^k),
		// starting from the explicit Euler guess.
		unext := append([]float64(nil), ucur...)
		du := prob.F(tcur, ucur)
		for i := 0; i < n; i++ {
			unext[i] += dtcur * du[i]
		}

		for iter := 0; iter < maxFixedPoint; iter++ {
			dunext := prob.F(tnext, unext)
			maxDiff := 0.0
			for i := 0; i < n; i++ {
				unew := ucur[i] + dtcur*dunext[i]
				if diff := math.Abs(unew - unext[i]); diff > maxDiff {
					maxDiff = diff
				}
				unext[i] = unew
			}
			if maxDiff < fixedPointTol {
				break
			}
		}

		if !finite(unext) {
			return nil, fmt.Errorf("solver: non-finite state at t=%g: %w", tcur, ErrDiverged)
		}

		tcur = tnext
		ucur = unext
		tOut = append(tOut, tcur)
		uOut = append(uOut, append([]float64(nil), ucur...))
		nsteps++
	}

	return &Solution{T: tOut, U: uOut, StateLabels: prob.StateLabels}, nil
}

// SolveAuto chooses between explicit and implicit methods based on a
// quick stiffness probe of the problem, then solves.
func SolveAuto(prob *Problem, opts *Options) (*Solution, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := prob.validate(); err != nil {
		return nil, err
	}

	if DetectStiffness(prob) {
		implicitOpts := &Options{
			Dt:       opts.Dt,
			Dtmin:    opts.Dtmin,
			Dtmax:    opts.Dtmax,
			Abstol:   opts.Abstol,
			Reltol:   opts.Reltol,
			Maxiters: opts.Maxiters,
			Adaptive: false, // Implicit Euler uses fixed steps
		}
		return ImplicitEuler(prob, implicitOpts)
	}
	return Solve(prob, Tsit5(), opts)
}

// DetectStiffness performs a quick heuristic test for stiffness based
// on the spread of derivative magnitudes at the initial state. A large
// ratio between the fastest and slowest active components suggests the
// problem may be stiff.
func DetectStiffness(prob *Problem) bool {
	du := prob.F(prob.T0, prob.U0)

	maxDu := 0.0
	minDu := math.MaxFloat64
	for _, v := range du {
		absV := math.Abs(v)
		if absV > 1e-10 {
			if absV > maxDu {
				maxDu = absV
			}
			if absV < minDu {
				minDu = absV
			}
		}
	}

	if minDu < 1e-10 || maxDu < 1e-10 {
		return false
	}
	return maxDu/minDu > 1000
}
