package results

import (
	"math"
	"time"

	"github.com/epifit-xyz/go-epifit/epimodel"
	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/solver"
	"github.com/google/uuid"
)

// Builder assembles a Report step by step. Setters may be chained in
// any order; the trajectory summary is materialized by Build.
type Builder struct {
	report    Report
	sol       *solver.Solution
	maxPoints int
}

// NewBuilder starts a report with a fresh ID and creation time.
func NewBuilder() *Builder {
	return &Builder{
		report: Report{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
			Params:    make(map[string]float64),
		},
	}
}

// WithModel records the model's name and its current parameters.
func (b *Builder) WithModel(m *epimodel.Model) *Builder {
	if m == nil {
		return b
	}
	b.report.Model = m.Name()
	names := m.ParamNames()
	params := m.Params()
	for i, name := range names {
		if i < len(params) {
			b.report.Params[name] = params[i]
		}
	}
	return b
}

// WithFit records fit statistics and overrides the report's parameter
// values with the fitted ones. names labels the entries of res.Params,
// typically Model.ParamNames().
func (b *Builder) WithFit(res *fit.Result, names []string) *Builder {
	if res == nil {
		return b
	}
	summary := &FitSummary{
		Method:      res.Method,
		Converged:   res.Converged,
		Iterations:  res.Iterations,
		InitialLoss: res.InitialLoss,
		FinalLoss:   res.FinalLoss,
	}
	for i, name := range names {
		if i >= len(res.Params) {
			break
		}
		b.report.Params[name] = res.Params[i]
		if i < len(res.Mask) && res.Mask[i] {
			summary.FreeParams = append(summary.FreeParams, name)
		}
	}
	b.report.Fit = summary
	return b
}

// WithSolution attaches a solved trajectory to the report.
func (b *Builder) WithSolution(sol *solver.Solution) *Builder {
	b.sol = sol
	return b
}

// WithMetrics merges derived metrics into the report.
func (b *Builder) WithMetrics(metrics map[string]float64) *Builder {
	if len(metrics) == 0 {
		return b
	}
	if b.report.Metrics == nil {
		b.report.Metrics = make(map[string]float64, len(metrics))
	}
	for k, v := range metrics {
		b.report.Metrics[k] = v
	}
	return b
}

// WithMaxPoints caps how many trajectory points Build stores. Zero
// keeps every solver output point.
func (b *Builder) WithMaxPoints(n int) *Builder {
	b.maxPoints = n
	return b
}

// Build returns the assembled report.
func (b *Builder) Build() *Report {
	if b.sol != nil && len(b.sol.T) > 0 {
		b.report.Trajectory = summarize(b.sol, b.maxPoints)
	}
	return &b.report
}

// summarize condenses a solution into a trajectory summary, thinning
// it to at most maxPoints output rows when maxPoints > 0.
func summarize(sol *solver.Solution, maxPoints int) *TrajectorySummary {
	times := sol.T
	if maxPoints > 0 && len(times) > maxPoints {
		times = downsample(sol.T, maxPoints)
	}
	ts := &TrajectorySummary{
		Points:       len(times),
		TimeSpan:     [2]float64{sol.T[0], sol.T[len(sol.T)-1]},
		Compartments: append([]string(nil), sol.StateLabels...),
		FinalState:   make(map[string]float64, len(sol.StateLabels)),
		Times:        append([]float64(nil), times...),
		Series:       make(map[string][]float64, len(sol.StateLabels)),
	}
	final := sol.GetFinalState()
	for i, label := range sol.StateLabels {
		ts.FinalState[label] = final[i]
		series := sol.GetVariable(label)
		if len(times) < len(sol.T) {
			series = downsampleAligned(sol.T, series, times)
		}
		ts.Series[label] = series
	}
	return ts
}

// downsample reduces data to approximately targetPoints, always
// keeping the first and last entries.
func downsample(data []float64, targetPoints int) []float64 {
	if len(data) <= targetPoints {
		return data
	}

	result := make([]float64, targetPoints)
	result[0] = data[0]
	result[targetPoints-1] = data[len(data)-1]

	step := float64(len(data)-1) / float64(targetPoints-1)
	for i := 1; i < targetPoints-1; i++ {
		idx := int(math.Round(float64(i) * step))
		result[i] = data[idx]
	}

	return result
}

// downsampleAligned picks the varData entries closest in time to each
// downsampled output point.
func downsampleAligned(timeFull, varData, timeDownsampled []float64) []float64 {
	result := make([]float64, len(timeDownsampled))
	for i, targetTime := range timeDownsampled {
		idx := findClosestIndex(timeFull, targetTime)
		result[i] = varData[idx]
	}
	return result
}

// findClosestIndex finds the index of the value closest to target.
func findClosestIndex(data []float64, target float64) int {
	if len(data) == 0 {
		return 0
	}

	minDist := math.Abs(data[0] - target)
	minIdx := 0

	for i := 1; i < len(data); i++ {
		dist := math.Abs(data[i] - target)
		if dist < minDist {
			minDist = dist
			minIdx = i
		}
	}

	return minIdx
}
