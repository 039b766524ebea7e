package plotter

import (
	"errors"
	"strings"
	"testing"

	"github.com/epifit-xyz/go-epifit/solver"
)

func renderString(t *testing.T, p *SVGPlotter) string {
	t.Helper()
	var sb strings.Builder
	if err := p.Render(&sb); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return sb.String()
}

func TestNewSVGPlotterDefaults(t *testing.T) {
	p := NewSVGPlotter(nil)
	if p.Data() == nil {
		t.Fatal("expected an empty chart for nil data")
	}

	svg := renderString(t, p)
	if !strings.HasPrefix(svg, "<svg") || !strings.HasSuffix(svg, "</svg>") {
		t.Error("expected a complete svg document")
	}
	if !strings.Contains(svg, `width="900"`) || !strings.Contains(svg, `height="600"`) {
		t.Errorf("expected default 900x600 dimensions:\n%.120s", svg)
	}
}

func TestSetters(t *testing.T) {
	p := NewSVGPlotter(&PlotData{})
	got := p.SetSize(800, 400).
		SetMargin(Margin{Top: 20, Right: 20, Bottom: 30, Left: 40}).
		SetTitle("Outbreak").
		SetXLabel("Days").
		SetYLabel("Cases")
	if got != p {
		t.Fatal("expected setters to return the plotter for chaining")
	}

	svg := renderString(t, p)
	if !strings.Contains(svg, `width="800"`) || !strings.Contains(svg, `height="400"`) {
		t.Error("expected resized dimensions")
	}
	for _, want := range []string{"Outbreak", "Days", "Cases"} {
		if !strings.Contains(svg, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestRenderLineSeries(t *testing.T) {
	data := &PlotData{
		Title:  "Quadratic",
		Series: []Series{{X: []float64{0, 1, 2, 3}, Y: []float64{0, 1, 4, 9}, Label: "y", Color: "#0000ff"}},
	}
	svg := renderString(t, NewSVGPlotter(data))

	if !strings.Contains(svg, "Quadratic") {
		t.Error("expected the title in output")
	}
	if !strings.Contains(svg, ">y</text>") {
		t.Error("expected the series label in the legend")
	}
	if !strings.Contains(svg, "#0000ff") {
		t.Error("expected the series color in output")
	}
	if !strings.Contains(svg, "<path") {
		t.Error("expected a path element for the curve")
	}
}

func TestRenderPointSeries(t *testing.T) {
	data := &PlotData{
		Series: []Series{{X: []float64{0, 1, 2}, Y: []float64{5, 3, 4}, Label: "obs", Points: true}},
	}
	svg := renderString(t, NewSVGPlotter(data))

	if !strings.Contains(svg, "<circle") {
		t.Error("expected circle markers for a point series")
	}
	if strings.Contains(svg, "<path") {
		t.Error("expected no path element for a point series")
	}
}

func TestRenderDefaultColors(t *testing.T) {
	data := &PlotData{
		Series: []Series{
			{X: []float64{0, 1}, Y: []float64{0, 1}, Label: "a"},
			{X: []float64{0, 1}, Y: []float64{1, 0}, Label: "b"},
		},
	}
	svg := renderString(t, NewSVGPlotter(data))

	if !strings.Contains(svg, palette[0]) || !strings.Contains(svg, palette[1]) {
		t.Error("expected palette colors for series without explicit colors")
	}
}

func TestRenderEscapesMarkup(t *testing.T) {
	data := &PlotData{
		Title:  "<script>alert(1)</script>",
		Series: []Series{{X: []float64{0, 1}, Y: []float64{0, 1}, Label: "<tag>"}},
	}
	svg := renderString(t, NewSVGPlotter(data))

	if strings.Contains(svg, "<script>") {
		t.Error("expected markup in the title to be escaped")
	}
	if !strings.Contains(svg, "&lt;") || !strings.Contains(svg, "&gt;") {
		t.Error("expected angle brackets escaped as entities")
	}
}

func TestRenderMismatchedLengths(t *testing.T) {
	data := &PlotData{
		Series: []Series{{X: []float64{0, 1, 2, 3}, Y: []float64{1, 2}}},
	}
	svg := renderString(t, NewSVGPlotter(data))
	if !strings.Contains(svg, "<path") {
		t.Error("expected the overlapping prefix of a ragged series to render")
	}
}

func TestPlotSolution(t *testing.T) {
	sol := &solver.Solution{
		T:           []float64{0, 1, 2},
		U:           [][]float64{{10, 0, 1}, {7, 2, 2}, {5, 3, 3}},
		StateLabels: []string{"S", "I", "R"},
	}

	svg := renderString(t, PlotSolution(sol))
	for _, label := range []string{">S</text>", ">I</text>", ">R</text>"} {
		if !strings.Contains(svg, label) {
			t.Errorf("expected legend entry %q", label)
		}
	}

	svg = renderString(t, PlotSolution(sol, "I"))
	if !strings.Contains(svg, ">I</text>") {
		t.Error("expected the selected compartment in the legend")
	}
	if strings.Contains(svg, ">S</text>") {
		t.Error("expected unselected compartments to be omitted")
	}

	svg = renderString(t, PlotSolution(sol, "Q"))
	if strings.Contains(svg, "<path") {
		t.Error("expected unknown compartments to be skipped")
	}
}

func TestPlotFit(t *testing.T) {
	sol := &solver.Solution{
		T:           []float64{0, 1, 2, 3},
		U:           [][]float64{{1}, {2}, {4}, {7}},
		StateLabels: []string{"X"},
	}
	tObs := []float64{0, 1, 2, 3}
	yObs := []float64{1.2, 1.9, 4.3, 6.8}

	svg := renderString(t, PlotFit(sol, "X", tObs, yObs))

	if !strings.Contains(svg, "X (model)") {
		t.Error("expected the model curve label")
	}
	if !strings.Contains(svg, "observed") {
		t.Error("expected the observation label")
	}
	if !strings.Contains(svg, "<path") || !strings.Contains(svg, "<circle") {
		t.Error("expected both a trajectory line and observation markers")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("sink closed") }

func TestRenderWriteError(t *testing.T) {
	p := NewSVGPlotter(&PlotData{Series: []Series{{X: []float64{0, 1}, Y: []float64{0, 1}}}})
	if err := p.Render(failWriter{}); err == nil {
		t.Fatal("expected a write error")
	}
}
