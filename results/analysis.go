package results

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/epifit-xyz/go-epifit/solver"
	"gonum.org/v1/gonum/stat"
)

// Analysis error conditions.
var (
	// ErrEmptySolution is returned when a solution has no output rows.
	ErrEmptySolution = errors.New("empty solution")

	// ErrNoCompartment is returned when a solution does not track the
	// requested compartment.
	ErrNoCompartment = errors.New("compartment not in solution")

	// ErrNotConserved is returned by CheckConservation when the
	// compartment total drifts beyond tolerance.
	ErrNotConserved = errors.New("conservation violated")
)

// PeakInfection returns the time and height of the infectious maximum.
func PeakInfection(sol *solver.Solution) (float64, float64, error) {
	return CompartmentMax(sol, "I")
}

// CompartmentMax returns the time and value of a compartment's global
// maximum.
func CompartmentMax(sol *solver.Solution, name string) (float64, float64, error) {
	if len(sol.U) == 0 {
		return 0, 0, ErrEmptySolution
	}
	idx := sol.Index(name)
	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoCompartment, name)
	}
	bestT, best := sol.T[0], sol.U[0][idx]
	for i := 1; i < len(sol.U); i++ {
		if sol.U[i][idx] > best {
			best, bestT = sol.U[i][idx], sol.T[i]
		}
	}
	return bestT, best, nil
}

// AttackRate returns the final fraction of the population outside the
// susceptible compartment.
func AttackRate(sol *solver.Solution) (float64, error) {
	if len(sol.U) == 0 {
		return 0, ErrEmptySolution
	}
	idx := sol.Index("S")
	if idx < 0 {
		return 0, fmt.Errorf("%w: S", ErrNoCompartment)
	}
	total := 0.0
	for _, v := range sol.U[0] {
		total += v
	}
	if total <= 0 {
		return 0, fmt.Errorf("non-positive compartment total %g", total)
	}
	final := sol.U[len(sol.U)-1]
	return 1 - final[idx]/total, nil
}

// CheckConservation verifies the compartment total stays within tol of
// its initial value at every output point.
func CheckConservation(sol *solver.Solution, tol float64) error {
	if len(sol.U) == 0 {
		return ErrEmptySolution
	}
	initial := 0.0
	for _, v := range sol.U[0] {
		initial += v
	}
	for i, row := range sol.U {
		total := 0.0
		for _, v := range row {
			total += v
		}
		if drift := math.Abs(total - initial); drift > tol {
			return fmt.Errorf("%w: total %g at t=%g drifts %g from initial %g",
				ErrNotConserved, total, sol.T[i], drift, initial)
		}
	}
	return nil
}

// SteadyState reports whether the trajectory settles, and when. The
// system counts as steady once the spread of every compartment over a
// window of the given duration stays within tol; the returned time is
// when the last compartment's first such window opens. The output grid
// is assumed uniform, as produced by Solve.
func SteadyState(sol *solver.Solution, window, tol float64) (bool, float64) {
	n := len(sol.T)
	if n < 2 || window <= 0 || tol < 0 {
		return false, 0
	}
	dt := (sol.T[n-1] - sol.T[0]) / float64(n-1)
	if dt <= 0 {
		return false, 0
	}
	w := int(math.Round(window / dt))
	if w < 1 {
		w = 1
	}
	if w > n-1 {
		return false, 0
	}

	reachedAt := sol.T[0]
	for c := range sol.StateLabels {
		idx := -1
		for i := 0; i+w < n; i++ {
			lo, hi := sol.U[i][c], sol.U[i][c]
			for j := i + 1; j <= i+w; j++ {
				v := sol.U[j][c]
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			if hi-lo <= tol {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, 0
		}
		if sol.T[idx] > reachedAt {
			reachedAt = sol.T[idx]
		}
	}
	return true, reachedAt
}

// Peaks returns the local maxima of one compartment, with prominence
// measured against the larger of the surrounding minima.
func Peaks(sol *solver.Solution, name string) ([]Peak, error) {
	if len(sol.U) == 0 {
		return nil, ErrEmptySolution
	}
	data := sol.GetVariable(name)
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCompartment, name)
	}
	if len(data) < 3 {
		return nil, nil
	}

	var peaks []Peak
	for i := 1; i < len(data)-1; i++ {
		if data[i] > data[i-1] && data[i] > data[i+1] {
			leftMin := data[i-1]
			rightMin := data[i+1]
			for j := i - 2; j >= 0; j-- {
				if data[j] < leftMin {
					leftMin = data[j]
				}
			}
			for j := i + 2; j < len(data); j++ {
				if data[j] < rightMin {
					rightMin = data[j]
				}
			}
			peaks = append(peaks, Peak{
				Time:       sol.T[i],
				Value:      data[i],
				Prominence: data[i] - math.Max(leftMin, rightMin),
			})
		}
	}
	return peaks, nil
}

// Crossings locates where two compartment curves intersect, refining
// each sign change by linear interpolation.
func Crossings(sol *solver.Solution, a, b string) ([]Crossing, error) {
	if len(sol.U) == 0 {
		return nil, ErrEmptySolution
	}
	da := sol.GetVariable(a)
	if da == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCompartment, a)
	}
	db := sol.GetVariable(b)
	if db == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCompartment, b)
	}

	var crossings []Crossing
	for k := 0; k < len(sol.T)-1; k++ {
		diff1 := da[k] - db[k]
		diff2 := da[k+1] - db[k+1]
		if diff1*diff2 < 0 {
			tCross := sol.T[k] + (sol.T[k+1]-sol.T[k])*(-diff1)/(diff2-diff1)
			vCross := da[k] + (da[k+1]-da[k])*(tCross-sol.T[k])/(sol.T[k+1]-sol.T[k])
			crossings = append(crossings, Crossing{Time: tCross, Value: vCross})
		}
	}
	return crossings, nil
}

// Describe computes summary statistics for one compartment.
func Describe(sol *solver.Solution, name string) (Stat, error) {
	if len(sol.U) == 0 {
		return Stat{}, ErrEmptySolution
	}
	data := sol.GetVariable(name)
	if data == nil {
		return Stat{}, fmt.Errorf("%w: %s", ErrNoCompartment, name)
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return Stat{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   stat.Mean(data, nil),
		Median: median,
		Std:    stat.PopStdDev(data, nil),
	}, nil
}
