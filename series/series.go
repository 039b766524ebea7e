// Package series acquires, cleans and stores observed case-count time
// series: the data layer feeding epimodel fits.
//
// A Series holds counts indexed by elapsed days since its first
// observation. Cleaning operations are pure: they return derived
// series and never modify the receiver. Derived series carry the
// source's metadata but no store identity.
package series

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotFound is returned when a store has no series under the
	// requested ID, or a CSV source has no row for the requested region.
	ErrNotFound = errors.New("series not found")
	// ErrMalformedCSV is returned when CSV input cannot be interpreted
	// as a case series.
	ErrMalformedCSV = errors.New("malformed CSV input")
)

// Series is an observed case-count time series for one region.
type Series struct {
	ID         string    // store identity, assigned by Put
	Name       string    // human-readable label
	Region     string    // province, state or country
	Population float64   // population of the region, 0 when unknown
	Times      []float64 // elapsed days since the first observation
	Counts     []float64 // observed counts, one per time
}

// Validate reports whether the series is structurally sound: equal
// vector lengths, finite entries, non-decreasing times. Negative
// counts are legal (daily series with corrections); see ClipNegatives.
func (s *Series) Validate() error {
	if len(s.Times) != len(s.Counts) {
		return fmt.Errorf("series: %d times for %d counts", len(s.Times), len(s.Counts))
	}
	for i, t := range s.Times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("series: non-finite time at index %d", i)
		}
		if i > 0 && t < s.Times[i-1] {
			return fmt.Errorf("series: times decrease at index %d (%g after %g)", i, t, s.Times[i-1])
		}
	}
	for i, c := range s.Counts {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("series: non-finite count at index %d", i)
		}
	}
	return nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Times) }

func (s *Series) derived(times, counts []float64) *Series {
	return &Series{
		Name:       s.Name,
		Region:     s.Region,
		Population: s.Population,
		Times:      times,
		Counts:     counts,
	}
}

// Window returns the observations with from <= t <= to.
func (s *Series) Window(from, to float64) *Series {
	var times, counts []float64
	for i, t := range s.Times {
		if t >= from && t <= to {
			times = append(times, t)
			counts = append(counts, s.Counts[i])
		}
	}
	return s.derived(times, counts)
}

// Last returns the final n observations, or all of them when n exceeds
// the series length.
func (s *Series) Last(n int) *Series {
	if n < 0 {
		n = 0
	}
	if n > len(s.Times) {
		n = len(s.Times)
	}
	start := len(s.Times) - n
	return s.derived(
		append([]float64(nil), s.Times[start:]...),
		append([]float64(nil), s.Counts[start:]...),
	)
}

// DayOffsets converts calendar dates to elapsed days since the first
// date. Fractional days are preserved for sub-daily timestamps.
func DayOffsets(dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	if len(dates) == 0 {
		return out
	}
	for i, d := range dates {
		out[i] = d.Sub(dates[0]).Hours() / 24
	}
	return out
}

// FillGaps returns the series resampled onto a whole-day grid from the
// first to the last observation, linearly interpolating days with no
// observation. Reporting series often skip days; the fitter wants an
// uninterrupted grid.
func (s *Series) FillGaps() *Series {
	if len(s.Times) < 2 {
		return s.derived(
			append([]float64(nil), s.Times...),
			append([]float64(nil), s.Counts...),
		)
	}

	first := s.Times[0]
	days := int(math.Round(s.Times[len(s.Times)-1] - first))
	times := make([]float64, days+1)
	counts := make([]float64, days+1)

	src := 0
	for d := 0; d <= days; d++ {
		t := first + float64(d)
		times[d] = t
		for src+1 < len(s.Times) && s.Times[src+1] <= t {
			src++
		}
		if src+1 >= len(s.Times) || math.Abs(s.Times[src]-t) < 1e-9 {
			counts[d] = s.Counts[src]
			continue
		}
		// Interpolate between the surrounding observations.
		t0, t1 := s.Times[src], s.Times[src+1]
		frac := (t - t0) / (t1 - t0)
		counts[d] = s.Counts[src] + frac*(s.Counts[src+1]-s.Counts[src])
	}
	return s.derived(times, counts)
}

// ClipNegatives returns the series with negative counts replaced by
// zero. Upstream data corrections can push daily increments negative.
func (s *Series) ClipNegatives() *Series {
	counts := make([]float64, len(s.Counts))
	for i, c := range s.Counts {
		if c < 0 {
			c = 0
		}
		counts[i] = c
	}
	return s.derived(append([]float64(nil), s.Times...), counts)
}

// Diff converts a cumulative series to per-interval increments. The
// first count is kept as-is: it accumulates everything before the
// series began.
func (s *Series) Diff() *Series {
	counts := make([]float64, len(s.Counts))
	for i, c := range s.Counts {
		if i == 0 {
			counts[i] = c
			continue
		}
		counts[i] = c - s.Counts[i-1]
	}
	return s.derived(append([]float64(nil), s.Times...), counts)
}
