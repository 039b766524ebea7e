// Package results assembles model runs into portable JSON reports and
// provides trajectory analysis helpers.
package results

import "time"

// Report is a self-contained record of one modeling run: the model it
// ran, the parameters it ran with, derived epidemic metrics, and
// optional fit and trajectory summaries. Reports round-trip through
// JSON and carry enough trajectory data to re-render charts and CSV
// without re-solving.
type Report struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"createdAt"`
	Model      string             `json:"model"`
	Params     map[string]float64 `json:"params"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Fit        *FitSummary        `json:"fit,omitempty"`
	Trajectory *TrajectorySummary `json:"trajectory,omitempty"`
}

// FitSummary records how a parameter fit went.
type FitSummary struct {
	Method      string   `json:"method"`
	Converged   bool     `json:"converged"`
	Iterations  int      `json:"iterations"`
	InitialLoss float64  `json:"initialLoss"`
	FinalLoss   float64  `json:"finalLoss"`
	FreeParams  []string `json:"freeParams,omitempty"`
}

// TrajectorySummary carries a solved trajectory inside a report.
type TrajectorySummary struct {
	Points       int                  `json:"points"`
	TimeSpan     [2]float64           `json:"timespan"`
	Compartments []string             `json:"compartments"`
	FinalState   map[string]float64   `json:"finalState"`
	Times        []float64            `json:"times"`
	Series       map[string][]float64 `json:"series"`
}

// Peak is a local maximum of one compartment curve. Prominence is the
// height above the larger of the surrounding minima.
type Peak struct {
	Time       float64 `json:"time"`
	Value      float64 `json:"value"`
	Prominence float64 `json:"prominence,omitempty"`
}

// Crossing marks where two compartment curves intersect.
type Crossing struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// Stat summarizes one compartment series.
type Stat struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
}
