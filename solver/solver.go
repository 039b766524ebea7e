// Package solver implements adaptive ODE (Ordinary Differential Equation)
// integration for dynamical systems expressed as dense state vectors.
//
// The integrators are stateless per call: independent problems may be
// solved concurrently. A failed integration is always reported as an
// error; a returned Solution is complete and finite.
package solver

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ODEFunc computes the derivative du/dt given time t and state u.
// The returned slice must have the same length as u.
type ODEFunc func(t float64, u []float64) []float64

// Problem represents an ODE initial value problem.
type Problem struct {
	F           ODEFunc   // Right-hand side du/dt = F(t, u)
	U0          []float64 // Initial state at T0
	T0          float64   // Start time
	Tf          float64   // End time
	StateLabels []string  // Ordered state variable names (optional)
}

func (p *Problem) validate() error {
	if p.F == nil {
		return fmt.Errorf("solver: problem has no derivative function")
	}
	if len(p.U0) == 0 {
		return fmt.Errorf("solver: problem has empty initial state")
	}
	if p.Tf < p.T0 {
		return fmt.Errorf("solver: tf %g before t0 %g: %w", p.Tf, p.T0, ErrBadTimeSpan)
	}
	return nil
}

// Solution represents the solution to an ODE problem.
// T and U have equal length; U[i] is the state at time T[i].
type Solution struct {
	T           []float64
	U           [][]float64
	StateLabels []string
}

// Index returns the position of a state variable by label, or -1.
func (s *Solution) Index(label string) int {
	for i, l := range s.StateLabels {
		if l == label {
			return i
		}
	}
	return -1
}

// GetVariable extracts the time series for a state variable by label.
// Returns nil if the label is unknown.
func (s *Solution) GetVariable(label string) []float64 {
	idx := s.Index(label)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(s.U))
	for i, row := range s.U {
		out[i] = row[idx]
	}
	return out
}

// GetState returns the state at a specific time point index.
func (s *Solution) GetState(i int) []float64 {
	if i < 0 || i >= len(s.U) {
		return nil
	}
	return s.U[i]
}

// GetFinalState returns the final state of the system.
func (s *Solution) GetFinalState() []float64 {
	if len(s.U) == 0 {
		return nil
	}
	return s.U[len(s.U)-1]
}

// Row returns the i-th output time and state together.
func (s *Solution) Row(i int) (float64, []float64) {
	if i < 0 || i >= len(s.U) {
		return 0, nil
	}
	return s.T[i], s.U[i]
}

// Interpolate returns the state at time t by linear interpolation
// between the two bracketing output points. Times outside the solved
// span clamp to the first or last state.
func (s *Solution) Interpolate(t float64) []float64 {
	n := len(s.T)
	if n == 0 {
		return nil
	}
	if t <= s.T[0] {
		return append([]float64(nil), s.U[0]...)
	}
	if t >= s.T[n-1] {
		return append([]float64(nil), s.U[n-1]...)
	}
	for i := 0; i < n-1; i++ {
		if s.T[i] <= t && t <= s.T[i+1] {
			dt := s.T[i+1] - s.T[i]
			if dt == 0 {
				return append([]float64(nil), s.U[i]...)
			}
			a := (t - s.T[i]) / dt
			out := make([]float64, len(s.U[i]))
			for j := range out {
				out[j] = s.U[i][j]*(1-a) + s.U[i+1][j]*a
			}
			return out
		}
	}
	return append([]float64(nil), s.U[n-1]...)
}

// WriteCSV writes the solution as CSV rows of (t, state...) with a
// header built from the state labels.
func (s *Solution) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"t"}, s.StateLabels...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(s.StateLabels)+1)
	for i, t := range s.T {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, v := range s.U[i] {
			row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Options contains solver configuration parameters.
type Options struct {
	Dt       float64 // Initial time step
	Dtmin    float64 // Minimum time step
	Dtmax    float64 // Maximum time step
	Abstol   float64 // Absolute error tolerance
	Reltol   float64 // Relative error tolerance
	Maxiters int     // Maximum number of accepted steps
	Adaptive bool    // Use adaptive step size control
}

// DefaultOptions returns default solver options.
// These are balanced settings suitable for most problems.
func DefaultOptions() *Options {
	return &Options{
		Dt:       0.01,
		Dtmin:    1e-6,
		Dtmax:    0.1,
		Abstol:   1e-6,
		Reltol:   1e-3,
		Maxiters: 100000,
		Adaptive: true,
	}
}

// EpidemicOptions returns options for compartmental epidemic models.
// The tolerances match the reference settings for SIR-family systems
// integrated in normalized (per-capita) form over spans of days.
func EpidemicOptions() *Options {
	return &Options{
		Dt:       0.01,
		Dtmin:    1e-9,
		Dtmax:    0.5,
		Abstol:   1e-8,
		Reltol:   1e-6,
		Maxiters: 200000,
		Adaptive: true,
	}
}

// FastOptions returns options optimized for speed over accuracy.
// Use these for coarse sweeps or when many simulations are needed quickly.
func FastOptions() *Options {
	return &Options{
		Dt:       0.1,
		Dtmin:    1e-4,
		Dtmax:    1.0,
		Abstol:   1e-2,
		Reltol:   1e-2,
		Maxiters: 1000,
		Adaptive: true,
	}
}

// AccurateOptions returns options for high-precision integration.
// Use these when publishing results or validating against closed forms.
func AccurateOptions() *Options {
	return &Options{
		Dt:       0.001,
		Dtmin:    1e-10,
		Dtmax:    0.1,
		Abstol:   1e-10,
		Reltol:   1e-8,
		Maxiters: 1000000,
		Adaptive: true,
	}
}

// StiffOptions returns options for stiff systems, such as containment
// regimes with removal rates far exceeding the infection rate.
func StiffOptions() *Options {
	return &Options{
		Dt:       0.001,
		Dtmin:    1e-10,
		Dtmax:    0.01,
		Abstol:   1e-8,
		Reltol:   1e-5,
		Maxiters: 500000,
		Adaptive: true,
	}
}

// UniformTimes generates n evenly spaced time points over [t0, tf].
// n == 1 yields just t0.
func UniformTimes(t0, tf float64, n int) []float64 {
	times := make([]float64, n)
	if n == 1 {
		times[0] = t0
		return times
	}
	dt := (tf - t0) / float64(n-1)
	for i := 0; i < n; i++ {
		times[i] = t0 + float64(i)*dt
	}
	return times
}

// Solver represents an embedded Runge-Kutta method as a Butcher tableau.
type Solver struct {
	Name  string
	Order int
	C     []float64   // Runge-Kutta nodes
	A     [][]float64 // Runge-Kutta matrix
	B     []float64   // Solution weights
	Bhat  []float64   // Error estimate weights
}

// rkStep advances one Runge-Kutta step of size dt from (t, u).
// It returns the candidate next state and the scaled error estimate
// (max over components of |err|/(abstol + reltol*max|u|)).
func rkStep(f ODEFunc, method *Solver, t float64, u []float64, dt, abstol, reltol float64) (unext []float64, errEst float64) {
	n := len(u)
	stages := len(method.C)
	k := make([][]float64, stages)
	k[0] = f(t, u)

	for stage := 1; stage < stages; stage++ {
		ts := t + method.C[stage]*dt
		us := append([]float64(nil), u...)
		for j := 0; j < stage; j++ {
			aj := 0.0
			if len(method.A) > stage && len(method.A[stage]) > j {
				aj = method.A[stage][j]
			}
			if aj != 0 {
				scale := dt * aj
				for i := 0; i < n; i++ {
					us[i] += scale * k[j][i]
				}
			}
		}
		k[stage] = f(ts, us)
	}

	unext = append([]float64(nil), u...)
	for j := 0; j < len(method.B); j++ {
		if method.B[j] != 0 {
			scale := dt * method.B[j]
			for i := 0; i < n; i++ {
				unext[i] += scale * k[j][i]
			}
		}
	}

	for i := 0; i < n; i++ {
		est := 0.0
		for j := 0; j < len(method.Bhat); j++ {
			est += dt * method.Bhat[j] * k[j][i]
		}
		scale := abstol + reltol*math.Max(math.Abs(u[i]), math.Abs(unext[i]))
		if scale == 0 {
			scale = abstol
		}
		if v := math.Abs(est) / scale; v > errEst {
			errEst = v
		}
	}
	return unext, errEst
}

func finite(u []float64) bool {
	for _, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// stepFactor computes the adaptive step growth/shrink factor from the
// scaled error estimate, clamped to [0.1, 5].
func stepFactor(errEst float64, order int) float64 {
	if errEst <= 0 {
		return 5.0
	}
	f := 0.9 * math.Pow(1.0/errEst, 1.0/float64(order+1))
	return math.Min(5.0, math.Max(0.1, f))
}

// Solve integrates the problem from T0 to Tf with adaptive output:
// every accepted step is recorded. The first row is the initial state.
//
// Returns ErrStepUnderflow if the controller cannot meet the tolerance
// at the minimum step size, ErrDiverged if the state becomes non-finite,
// and ErrMaxIters if the step budget runs out before Tf.
func Solve(prob *Problem, method *Solver, opts *Options) (*Solution, error) {
	if method == nil {
		method = Tsit5()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := prob.validate(); err != nil {
		return nil, err
	}

	tcur := prob.T0
	ucur := append([]float64(nil), prob.U0...)
	tOut := []float64{tcur}
	uOut := [][]float64{append([]float64(nil), ucur...)}
	dtcur := opts.Dt
	nsteps := 0

	for tcur < prob.Tf {
		if nsteps >= opts.Maxiters {
			return nil, fmt.Errorf("solver: stopped at t=%g of %g after %d steps: %w",
				tcur, prob.Tf, nsteps, ErrMaxIters)
		}
		// Don't overshoot the final time.
		if tcur+dtcur > prob.Tf {
			dtcur = prob.Tf - tcur
		}

		unext, errEst := rkStep(prob.F, method, tcur, ucur, dtcur, opts.Abstol, opts.Reltol)

		if !finite(unext) {
			if !opts.Adaptive || dtcur <= opts.Dtmin {
				return nil, fmt.Errorf("solver: non-finite state at t=%g: %w", tcur, ErrDiverged)
			}
			dtcur = math.Max(opts.Dtmin, dtcur*0.1)
			continue
		}

		if opts.Adaptive && errEst > 1.0 {
			if dtcur <= opts.Dtmin {
				return nil, fmt.Errorf("solver: tolerance unmet at t=%g with dt=%g: %w",
					tcur, dtcur, ErrStepUnderflow)
			}
			// Reject step and reduce step size.
			dtcur = math.Max(opts.Dtmin, dtcur*stepFactor(errEst, method.Order))
			continue
		}

		// Accept step.
		tcur += dtcur
		ucur = unext
		tOut = append(tOut, tcur)
		uOut = append(uOut, append([]float64(nil), ucur...))
		nsteps++

		if opts.Adaptive {
			dtcur = math.Min(opts.Dtmax, math.Max(opts.Dtmin, dtcur*stepFactor(errEst, method.Order)))
		}
	}

	return &Solution{T: tOut, U: uOut, StateLabels: prob.StateLabels}, nil
}

// SolveAt integrates the problem recording the state exactly at the
// requested output times. tEval must be non-decreasing with
// tEval[0] >= T0; internal steps are clamped so each output time is hit
// exactly, never interpolated past. This is the entry point for fitting,
// where model output must align with observation times.
func SolveAt(prob *Problem, tEval []float64, method *Solver, opts *Options) (*Solution, error) {
	if method == nil {
		method = Tsit5()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := prob.validate(); err != nil {
		return nil, err
	}
	if len(tEval) == 0 {
		return nil, fmt.Errorf("solver: empty output grid: %w", ErrBadTimeSpan)
	}
	if tEval[0] < prob.T0 {
		return nil, fmt.Errorf("solver: first output time %g before t0 %g: %w",
			tEval[0], prob.T0, ErrBadTimeSpan)
	}
	for i := 1; i < len(tEval); i++ {
		if tEval[i] < tEval[i-1] {
			return nil, fmt.Errorf("solver: output times decrease at index %d: %w", i, ErrBadTimeSpan)
		}
	}

	tcur := prob.T0
	ucur := append([]float64(nil), prob.U0...)
	tOut := make([]float64, 0, len(tEval))
	uOut := make([][]float64, 0, len(tEval))
	dtcur := opts.Dt
	nsteps := 0

	for _, target := range tEval {
		for tcur < target {
			if nsteps >= opts.Maxiters {
				return nil, fmt.Errorf("solver: stopped at t=%g of %g after %d steps: %w",
					tcur, target, nsteps, ErrMaxIters)
			}
			step := dtcur
			if tcur+step > target {
				step = target - tcur
			}

			unext, errEst := rkStep(prob.F, method, tcur, ucur, step, opts.Abstol, opts.Reltol)

			if !finite(unext) {
				if !opts.Adaptive || step <= opts.Dtmin {
					return nil, fmt.Errorf("solver: non-finite state at t=%g: %w", tcur, ErrDiverged)
				}
				dtcur = math.Max(opts.Dtmin, step*0.1)
				continue
			}

			if opts.Adaptive && errEst > 1.0 {
				if step <= opts.Dtmin {
					return nil, fmt.Errorf("solver: tolerance unmet at t=%g with dt=%g: %w",
						tcur, step, ErrStepUnderflow)
				}
				dtcur = math.Max(opts.Dtmin, step*stepFactor(errEst, method.Order))
				continue
			}

			tcur += step
			ucur = unext
			nsteps++

			if opts.Adaptive {
				dtcur = math.Min(opts.Dtmax, math.Max(opts.Dtmin, dtcur*stepFactor(errEst, method.Order)))
			}
		}
		tOut = append(tOut, target)
		uOut = append(uOut, append([]float64(nil), ucur...))
	}

	return &Solution{T: tOut, U: uOut, StateLabels: prob.StateLabels}, nil
}
