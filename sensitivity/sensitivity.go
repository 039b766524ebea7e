// Package sensitivity explores how model outcomes respond to
// parameter changes: one-at-a-time perturbations, sweeps, gradient
// estimates and grid searches. Every scenario runs on a clone of the
// base model, so the analyzer never mutates what it was given.
package sensitivity

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/epifit-xyz/go-epifit/epimodel"
	"github.com/epifit-xyz/go-epifit/results"
	"github.com/epifit-xyz/go-epifit/solver"
)

// Scorer reduces a solved trajectory to a single outcome measure.
type Scorer func(sol *solver.Solution) float64

// PeakScorer scores a run by the maximum the named compartment
// reaches. Unknown compartments score NaN.
func PeakScorer(name string) Scorer {
	return func(sol *solver.Solution) float64 {
		_, peak, err := results.CompartmentMax(sol, name)
		if err != nil {
			return math.NaN()
		}
		return peak
	}
}

// FinalScorer scores a run by the named compartment's final value.
func FinalScorer(name string) Scorer {
	return func(sol *solver.Solution) float64 {
		idx := sol.Index(name)
		if idx < 0 || len(sol.U) == 0 {
			return math.NaN()
		}
		return sol.U[len(sol.U)-1][idx]
	}
}

// AttackRateScorer scores a run by the final non-susceptible fraction.
func AttackRateScorer() Scorer {
	return func(sol *solver.Solution) float64 {
		rate, err := results.AttackRate(sol)
		if err != nil {
			return math.NaN()
		}
		return rate
	}
}

// ParamEffect records how perturbing one parameter moved the score.
type ParamEffect struct {
	Name   string
	Value  float64 // perturbed parameter value
	Score  float64
	Impact float64 // Score - Baseline
}

// Result holds a one-at-a-time analysis, most influential parameter
// first.
type Result struct {
	Baseline float64
	Effects  []ParamEffect
}

// Analyzer scores what-if scenarios for one parameterized model.
type Analyzer struct {
	model  *epimodel.Model
	scorer Scorer
	t0     float64
	tf     float64
	points int
	opts   *solver.Options
}

// New builds an analyzer around a model. A nil scorer defaults to
// PeakScorer("I"). Scenarios integrate over [0, 30] days at daily
// resolution until overridden.
func New(model *epimodel.Model, scorer Scorer) *Analyzer {
	if scorer == nil {
		scorer = PeakScorer("I")
	}
	return &Analyzer{
		model:  model,
		scorer: scorer,
		tf:     30,
		points: 31,
	}
}

// WithTimeSpan sets the scenario integration window in days.
func (a *Analyzer) WithTimeSpan(t0, tf float64) *Analyzer {
	a.t0, a.tf = t0, tf
	return a
}

// WithOptions sets the integrator options scenarios run with.
func (a *Analyzer) WithOptions(opts *solver.Options) *Analyzer {
	a.opts = opts
	return a
}

// WithPoints sets how many output points each scenario produces.
func (a *Analyzer) WithPoints(n int) *Analyzer {
	a.points = n
	return a
}

// score runs one scenario on a clone of the base model.
func (a *Analyzer) score(params []float64) (float64, error) {
	m := a.model.Clone()
	if a.opts != nil {
		m.WithOptions(a.opts)
	}
	if err := m.SetParams(params, m.InitialConditions()); err != nil {
		return 0, err
	}
	points := a.points
	if points < 2 {
		points = 2
	}
	sol, err := m.SolveAt(solver.UniformTimes(a.t0, a.tf, points))
	if err != nil {
		return 0, err
	}
	return a.scorer(sol), nil
}

// baseParams fetches the base parameter vector, rejecting models that
// have none yet.
func (a *Analyzer) baseParams() ([]float64, error) {
	base := a.model.Params()
	if len(base) == 0 {
		return nil, fmt.Errorf("sensitivity: %w", epimodel.ErrNotParameterized)
	}
	return base, nil
}

// AnalyzeParams perturbs each parameter by the relative delta, one at
// a time, and reports each score against the baseline, ordered by
// absolute impact.
func (a *Analyzer) AnalyzeParams(delta float64) (*Result, error) {
	if delta == 0 {
		return nil, fmt.Errorf("perturbation delta must be non-zero")
	}
	base, err := a.baseParams()
	if err != nil {
		return nil, err
	}
	baseline, err := a.score(base)
	if err != nil {
		return nil, err
	}

	names := a.model.ParamNames()
	res := &Result{Baseline: baseline, Effects: make([]ParamEffect, len(base))}
	for i := range base {
		trial := append([]float64(nil), base...)
		trial[i] = perturb(trial[i], delta)
		score, err := a.score(trial)
		if err != nil {
			return nil, fmt.Errorf("perturb %s: %w", names[i], err)
		}
		res.Effects[i] = ParamEffect{Name: names[i], Value: trial[i], Score: score, Impact: score - baseline}
	}
	sortEffects(res.Effects)
	return res, nil
}

// AnalyzeParamsParallel is AnalyzeParams with scenarios running
// concurrently, each on its own model clone.
func (a *Analyzer) AnalyzeParamsParallel(delta float64) (*Result, error) {
	if delta == 0 {
		return nil, fmt.Errorf("perturbation delta must be non-zero")
	}
	base, err := a.baseParams()
	if err != nil {
		return nil, err
	}
	baseline, err := a.score(base)
	if err != nil {
		return nil, err
	}

	names := a.model.ParamNames()
	res := &Result{Baseline: baseline, Effects: make([]ParamEffect, len(base))}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range base {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trial := append([]float64(nil), base...)
			trial[i] = perturb(trial[i], delta)
			score, err := a.score(trial)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("perturb %s: %w", names[i], err)
				}
				return
			}
			res.Effects[i] = ParamEffect{Name: names[i], Value: trial[i], Score: score, Impact: score - baseline}
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	sortEffects(res.Effects)
	return res, nil
}

// SweepPoint pairs one swept parameter value with its score.
type SweepPoint struct {
	Value float64
	Score float64
}

// Sweep records the score across one parameter's values. Best carries
// the highest score, Worst the lowest.
type Sweep struct {
	Param  string
	Points []SweepPoint
	Best   SweepPoint
	Worst  SweepPoint
}

// SweepParam scores the model across the given values of one
// parameter, all other parameters held at their base values.
func (a *Analyzer) SweepParam(name string, values []float64) (*Sweep, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no sweep values for %q", name)
	}
	base, err := a.baseParams()
	if err != nil {
		return nil, err
	}
	idx := paramIndex(a.model.ParamNames(), name)
	if idx < 0 {
		return nil, fmt.Errorf("unknown parameter %q", name)
	}

	sw := &Sweep{Param: name, Points: make([]SweepPoint, len(values))}
	best := math.Inf(-1)
	worst := math.Inf(1)
	for i, v := range values {
		trial := append([]float64(nil), base...)
		trial[idx] = v
		score, err := a.score(trial)
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%g: %w", name, v, err)
		}
		sw.Points[i] = SweepPoint{Value: v, Score: score}
		if score > best {
			best = score
			sw.Best = sw.Points[i]
		}
		if score < worst {
			worst = score
			sw.Worst = sw.Points[i]
		}
	}
	return sw, nil
}

// SweepRange sweeps n evenly spaced values from lo to hi inclusive.
func (a *Analyzer) SweepRange(name string, lo, hi float64, n int) (*Sweep, error) {
	if n < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", n)
	}
	return a.SweepParam(name, solver.UniformTimes(lo, hi, n))
}

// Gradient estimates the score's partial derivative for every
// parameter by central differences with relative step delta. Steps
// that would push a parameter negative are truncated at zero.
func (a *Analyzer) Gradient(delta float64) (map[string]float64, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("gradient step must be positive, got %g", delta)
	}
	base, err := a.baseParams()
	if err != nil {
		return nil, err
	}

	names := a.model.ParamNames()
	grads := make(map[string]float64, len(base))
	for i, name := range names {
		h := math.Abs(base[i]) * delta
		if h == 0 {
			h = delta
		}

		up := append([]float64(nil), base...)
		up[i] += h
		down := append([]float64(nil), base...)
		down[i] -= h
		if down[i] < 0 {
			down[i] = 0
		}
		span := up[i] - down[i]

		scoreUp, err := a.score(up)
		if err != nil {
			return nil, fmt.Errorf("gradient %s: %w", name, err)
		}
		scoreDown, err := a.score(down)
		if err != nil {
			return nil, fmt.Errorf("gradient %s: %w", name, err)
		}
		grads[name] = (scoreUp - scoreDown) / span
	}
	return grads, nil
}

// GridPoint is one scored parameter assignment.
type GridPoint struct {
	Params map[string]float64
	Score  float64
}

// GridSearch scores every combination in the grid and returns the
// best-scoring assignment; ties keep the earliest combination in
// sorted-key enumeration order. Grid keys must name model parameters.
func (a *Analyzer) GridSearch(grid map[string][]float64) (*GridPoint, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	base, err := a.baseParams()
	if err != nil {
		return nil, err
	}

	names := a.model.ParamNames()
	keys := make([]string, 0, len(grid))
	for k, values := range grid {
		if paramIndex(names, k) < 0 {
			return nil, fmt.Errorf("unknown parameter %q", k)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("parameter %q has no grid values", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 1
	for _, k := range keys {
		total *= len(grid[k])
	}

	best := &GridPoint{Score: math.Inf(-1)}
	for i := 0; i < total; i++ {
		combo := make(map[string]float64, len(keys))
		idx := i
		for _, k := range keys {
			values := grid[k]
			combo[k] = values[idx%len(values)]
			idx /= len(values)
		}

		trial := append([]float64(nil), base...)
		for k, v := range combo {
			trial[paramIndex(names, k)] = v
		}
		score, err := a.score(trial)
		if err != nil {
			return nil, fmt.Errorf("grid point %v: %w", combo, err)
		}
		if score > best.Score {
			best.Params = combo
			best.Score = score
		}
	}
	return best, nil
}

// perturb applies a relative delta, falling back to an absolute step
// for parameters at zero.
func perturb(v, delta float64) float64 {
	if v == 0 {
		return math.Abs(delta)
	}
	return v * (1 + delta)
}

func sortEffects(effects []ParamEffect) {
	sort.Slice(effects, func(i, j int) bool {
		return math.Abs(effects[i].Impact) > math.Abs(effects[j].Impact)
	})
}

func paramIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
