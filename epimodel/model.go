// Package epimodel implements compartmental epidemic models (SIR and
// SIR-X) over the solver and fit packages.
//
// A Model integrates its dynamics in normalized form (compartment
// fractions of the total population) and scales trajectories back to
// absolute counts on output. Fitting is two-phase: Fit returns a
// fit.Result without touching the model, and Apply commits it.
package epimodel

import (
	"fmt"
	"io"
	"math"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/solver"
)

// DefaultPoints is the number of output points Solve uses when none is
// given: one per day of the reference one-week forecast span.
const DefaultPoints = 7

// definition describes a model variant: compartments, parameters,
// normalized dynamics, and fitting defaults. Both variants flow through
// the same Model machinery; all variant behavior lives here.
type definition struct {
	name         string
	compartments []string
	params       []string

	// deriv binds a parameter vector to the normalized right-hand side.
	deriv func(p []float64) solver.ODEFunc

	// icHook rewrites the normalized initial conditions from the
	// parameter vector before every integration. Nil means identity.
	icHook func(p, w0 []float64) []float64

	fitOutput int  // default fit-output compartment index
	fitFixed  bool // fit output not selectable
}

// Model is a parameterized compartmental model. The zero value is not
// usable; construct with NewSIR or NewSIRX.
type Model struct {
	def definition

	params        []float64
	ic            []float64 // initial conditions as absolute counts
	w0            []float64 // normalized initial conditions (pre-hook)
	pop           float64
	parameterized bool

	fitOut int
	traj   *solver.Solution

	opts   *solver.Options
	method *solver.Solver
	points int
}

func newModel(def definition) *Model {
	return &Model{
		def:    def,
		fitOut: def.fitOutput,
		opts:   solver.EpidemicOptions(),
		method: solver.Tsit5(),
		points: DefaultPoints,
	}
}

// Name returns the variant name ("SIR", "SIR-X").
func (m *Model) Name() string { return m.def.name }

// Compartments returns the compartment names in state order.
func (m *Model) Compartments() []string {
	return append([]string(nil), m.def.compartments...)
}

// ParamNames returns the parameter names in vector order.
func (m *Model) ParamNames() []string {
	return append([]string(nil), m.def.params...)
}

// WithOptions sets the integrator options used by Solve and Fit.
func (m *Model) WithOptions(opts *solver.Options) *Model {
	if opts != nil {
		m.opts = opts
	}
	return m
}

// WithMethod sets the Runge-Kutta method used by Solve and Fit.
func (m *Model) WithMethod(method *solver.Solver) *Model {
	if method != nil {
		m.method = method
	}
	return m
}

// WithPoints sets the default output point count for Solve.
func (m *Model) WithPoints(n int) *Model {
	if n > 0 {
		m.points = n
	}
	return m
}

// SetParams sets the parameter vector and initial conditions (absolute
// counts, one per compartment). Both must be finite and non-negative,
// and the initial conditions must sum to a positive population.
func (m *Model) SetParams(p, ic []float64) error {
	if len(p) != len(m.def.params) {
		return fmt.Errorf("epimodel: %d parameters for %s, want %d: %w",
			len(p), m.def.name, len(m.def.params), ErrInvalidParameters)
	}
	if len(ic) != len(m.def.compartments) {
		return fmt.Errorf("epimodel: %d initial conditions for %s, want %d: %w",
			len(ic), m.def.name, len(m.def.compartments), ErrInvalidParameters)
	}
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("epimodel: parameter %s = %g: %w", m.def.params[i], v, ErrInvalidParameters)
		}
	}
	pop := 0.0
	for i, v := range ic {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("epimodel: initial %s = %g: %w", m.def.compartments[i], v, ErrInvalidParameters)
		}
		pop += v
	}
	if pop <= 0 {
		return fmt.Errorf("epimodel: initial conditions sum to zero: %w", ErrInvalidParameters)
	}

	m.params = append([]float64(nil), p...)
	m.ic = append([]float64(nil), ic...)
	m.w0 = make([]float64, len(ic))
	for i, v := range ic {
		m.w0[i] = v / pop
	}
	m.pop = pop
	m.parameterized = true
	return nil
}

// Params returns a copy of the current parameter vector.
func (m *Model) Params() []float64 {
	return append([]float64(nil), m.params...)
}

// Param returns the value of a named parameter.
func (m *Model) Param(name string) (float64, error) {
	for i, n := range m.def.params {
		if n == name {
			return m.params[i], nil
		}
	}
	return 0, fmt.Errorf("epimodel: model %s has no parameter %q", m.def.name, name)
}

// InitialConditions returns a copy of the initial conditions as
// absolute counts, in compartment order.
func (m *Model) InitialConditions() []float64 {
	return append([]float64(nil), m.ic...)
}

// Population returns the total population (sum of initial conditions).
func (m *Model) Population() float64 { return m.pop }

// SetFitOutput selects the compartment whose trajectory Fit compares
// against observations. SIR-X keeps its fit output fixed to X.
func (m *Model) SetFitOutput(name string) error {
	idx := -1
	for i, c := range m.def.compartments {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("epimodel: %q: %w", name, ErrUnknownCompartment)
	}
	if m.def.fitFixed && idx != m.def.fitOutput {
		return fmt.Errorf("epimodel: fit output is fixed to %s for %s",
			m.def.compartments[m.def.fitOutput], m.def.name)
	}
	m.fitOut = idx
	return nil
}

// FitOutput returns the name of the current fit-output compartment.
func (m *Model) FitOutput() string { return m.def.compartments[m.fitOut] }

// hookedICs applies the variant's initial-condition hook for the given
// parameter vector. The hook runs before every integration, fit trials
// and solves alike, so both see identical initial states.
func (m *Model) hookedICs(p []float64) []float64 {
	w0 := append([]float64(nil), m.w0...)
	if m.def.icHook != nil {
		w0 = m.def.icHook(p, w0)
	}
	return w0
}

func (m *Model) problem(p, tEval []float64) *solver.Problem {
	return &solver.Problem{
		F:           m.def.deriv(p),
		U0:          m.hookedICs(p),
		T0:          tEval[0],
		Tf:          tEval[len(tEval)-1],
		StateLabels: m.def.compartments,
	}
}

// Solve integrates the model over [0, tfDays] at nPoints evenly spaced
// output times (nPoints <= 0 uses the model default) and stores the
// trajectory, replacing any previous one. The returned Solution is in
// absolute counts.
func (m *Model) Solve(tfDays float64, nPoints int) (*solver.Solution, error) {
	if nPoints <= 0 {
		nPoints = m.points
	}
	return m.SolveAt(solver.UniformTimes(0, tfDays, nPoints))
}

// SolveAt integrates the model at externally supplied output times.
// Initial conditions hold at tEval[0].
func (m *Model) SolveAt(tEval []float64) (*solver.Solution, error) {
	if !m.parameterized {
		return nil, fmt.Errorf("epimodel: solve: %w", ErrNotParameterized)
	}
	if len(tEval) == 0 {
		return nil, fmt.Errorf("epimodel: empty time grid: %w", solver.ErrBadTimeSpan)
	}

	sol, err := solver.SolveAt(m.problem(m.params, tEval), tEval, m.method, m.opts)
	if err != nil {
		return nil, fmt.Errorf("epimodel: %s solve: %w", m.def.name, err)
	}
	// Scale normalized fractions back to counts.
	for i := range sol.U {
		for j := range sol.U[i] {
			sol.U[i][j] *= m.pop
		}
	}
	m.traj = sol
	return sol, nil
}

// Fetch returns the most recently stored trajectory.
func (m *Model) Fetch() (*solver.Solution, error) {
	if m.traj == nil {
		return nil, fmt.Errorf("epimodel: %w", ErrNoTrajectory)
	}
	return m.traj, nil
}

// ExportCSV writes the stored trajectory as CSV with a t,S,I,R[,X]
// header.
func (m *Model) ExportCSV(w io.Writer) error {
	if m.traj == nil {
		return fmt.Errorf("epimodel: export: %w", ErrNoTrajectory)
	}
	return m.traj.WriteCSV(w)
}

// Fit estimates the masked parameters from observed counts of the
// fit-output compartment at times tObs. population scales the model's
// normalized output to absolute counts for comparison with yObs; it
// must be positive and finite. The model itself is not modified: commit
// the returned result with Apply.
//
// Solver options come from the model unless opts.Solver overrides them.
func (m *Model) Fit(tObs, yObs []float64, population float64, opts *fit.Options) (*fit.Result, error) {
	if !m.parameterized {
		return nil, fmt.Errorf("epimodel: fit: %w", ErrNotParameterized)
	}
	if population <= 0 || math.IsNaN(population) || math.IsInf(population, 0) {
		return nil, fmt.Errorf("epimodel: population %g: %w", population, ErrInvalidParameters)
	}

	solverOpts := m.opts
	if opts != nil && opts.Solver != nil {
		solverOpts = opts.Solver
	}
	outIdx := m.fitOut

	forward := func(p, t []float64) ([]float64, error) {
		sol, err := solver.SolveAt(m.problem(p, t), t, m.method, solverOpts)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(t))
		for i := range out {
			out[i] = sol.U[i][outIdx] * population
		}
		return out, nil
	}

	return fit.Minimize(forward, tObs, yObs, m.Params(), opts)
}

// Apply commits a fit result into the model's parameters. The result's
// Params vector is committed verbatim: masked entries carry fitted
// values, fixed entries are bit-identical to the pre-fit guess.
func (m *Model) Apply(res *fit.Result) error {
	if res == nil {
		return fmt.Errorf("epimodel: apply: nil fit result")
	}
	if !m.parameterized {
		return fmt.Errorf("epimodel: apply: %w", ErrNotParameterized)
	}
	if len(res.Params) != len(m.def.params) {
		return fmt.Errorf("epimodel: fit result has %d parameters for %s, want %d: %w",
			len(res.Params), m.def.name, len(m.def.params), ErrInvalidParameters)
	}
	for i, v := range res.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("epimodel: fit result parameter %s = %g: %w",
				m.def.params[i], v, ErrInvalidParameters)
		}
	}
	m.params = append([]float64(nil), res.Params...)
	return nil
}

// Clone returns an independent copy of the model sharing only the
// immutable variant definition and integrator configuration. Sweeps and
// sensitivity analyses clone before mutating parameters.
func (m *Model) Clone() *Model {
	out := &Model{
		def:           m.def,
		params:        append([]float64(nil), m.params...),
		ic:            append([]float64(nil), m.ic...),
		w0:            append([]float64(nil), m.w0...),
		pop:           m.pop,
		parameterized: m.parameterized,
		fitOut:        m.fitOut,
		opts:          m.opts,
		method:        m.method,
		points:        m.points,
	}
	return out
}

// ReproductionNumber returns the basic reproduction number α/β.
func (m *Model) ReproductionNumber() (float64, error) {
	if !m.parameterized {
		return 0, fmt.Errorf("epimodel: reproduction number: %w", ErrNotFitted)
	}
	if m.params[1] == 0 {
		return 0, fmt.Errorf("epimodel: reproduction number: %w", ErrDivisionByZero)
	}
	return m.params[0] / m.params[1], nil
}
