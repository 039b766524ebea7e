// Package plotter renders time-series charts as standalone SVG
// documents.
package plotter

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/epifit-xyz/go-epifit/solver"
)

// palette supplies default series colors.
var palette = []string{"#e41a1c", "#377eb8", "#4daf4a", "#984ea3", "#ff7f00", "#a65628", "#f781bf", "#999999"}

// Series is one curve or marker set on a chart.
type Series struct {
	X     []float64
	Y     []float64
	Label string
	// Color is a CSS color; empty picks from the default palette.
	Color string
	// Points draws markers at each sample instead of a connected line.
	Points bool
}

// PlotData is the content of one chart.
type PlotData struct {
	Title  string
	XLabel string
	YLabel string
	Series []Series
}

// Margin is the whitespace around the plot area, in pixels.
type Margin struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// SVGPlotter renders a PlotData chart as SVG.
type SVGPlotter struct {
	data   *PlotData
	width  float64
	height float64
	margin Margin
}

// NewSVGPlotter wraps chart content in a renderer with default size
// and margins. A nil data starts an empty chart.
func NewSVGPlotter(data *PlotData) *SVGPlotter {
	if data == nil {
		data = &PlotData{}
	}
	return &SVGPlotter{
		data:   data,
		width:  900,
		height: 600,
		margin: Margin{Top: 40, Right: 30, Bottom: 50, Left: 60},
	}
}

// Data returns the chart content for further editing.
func (p *SVGPlotter) Data() *PlotData { return p.data }

// SetSize sets the outer document dimensions in pixels.
func (p *SVGPlotter) SetSize(width, height float64) *SVGPlotter {
	p.width = width
	p.height = height
	return p
}

// SetMargin sets the whitespace around the plot area.
func (p *SVGPlotter) SetMargin(m Margin) *SVGPlotter {
	p.margin = m
	return p
}

// SetTitle sets the chart title.
func (p *SVGPlotter) SetTitle(title string) *SVGPlotter {
	p.data.Title = title
	return p
}

// SetXLabel sets the X-axis label.
func (p *SVGPlotter) SetXLabel(label string) *SVGPlotter {
	p.data.XLabel = label
	return p
}

// SetYLabel sets the Y-axis label.
func (p *SVGPlotter) SetYLabel(label string) *SVGPlotter {
	p.data.YLabel = label
	return p
}

// Render writes the chart as a standalone SVG document.
func (p *SVGPlotter) Render(w io.Writer) error {
	_, err := io.WriteString(w, p.render())
	return err
}

func (p *SVGPlotter) render() string {
	plotWidth := p.width - p.margin.Left - p.margin.Right
	plotHeight := p.height - p.margin.Top - p.margin.Bottom

	// Data ranges.
	xmin := math.Inf(1)
	xmax := math.Inf(-1)
	ymin := math.Inf(1)
	ymax := math.Inf(-1)
	for _, s := range p.data.Series {
		n := min(len(s.X), len(s.Y))
		for i := 0; i < n; i++ {
			if s.X[i] < xmin {
				xmin = s.X[i]
			}
			if s.X[i] > xmax {
				xmax = s.X[i]
			}
			if s.Y[i] < ymin {
				ymin = s.Y[i]
			}
			if s.Y[i] > ymax {
				ymax = s.Y[i]
			}
		}
	}
	if math.IsInf(xmin, 1) || math.IsInf(xmax, -1) {
		xmin, xmax = 0, 1
	}
	if math.IsInf(ymin, 1) || math.IsInf(ymax, -1) {
		ymin, ymax = 0, 1
	}

	xrange := xmax - xmin
	if xrange == 0 {
		xrange = 1
	}
	yrange := ymax - ymin
	if yrange == 0 {
		yrange = 1
	}
	xmin -= xrange * 0.05
	xmax += xrange * 0.05
	ymin -= yrange * 0.1
	ymax += yrange * 0.1

	sx := func(x float64) float64 {
		return p.margin.Left + ((x-xmin)/(xmax-xmin))*plotWidth
	}
	sy := func(y float64) float64 {
		return p.margin.Top + plotHeight - ((y-ymin)/(ymax-ymin))*plotHeight
	}

	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`,
		int(p.width), int(p.height)))

	// Background rectangle for visibility on dark themes.
	sb.WriteString(fmt.Sprintf(`<rect width="%d" height="%d" fill="#f8f9fa" rx="8"/>`,
		int(p.width), int(p.height)))

	if p.data.Title != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%f" y="25" text-anchor="middle" font-family="Arial, sans-serif" font-size="16" font-weight="bold">%s</text>`,
			p.width/2, escape(p.data.Title)))
	}

	// Axes.
	sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="#333" stroke-width="2"/>`,
		p.margin.Left, p.margin.Top, p.margin.Left, p.margin.Top+plotHeight))
	sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="#333" stroke-width="2"/>`,
		p.margin.Left, p.margin.Top+plotHeight, p.margin.Left+plotWidth, p.margin.Top+plotHeight))

	// Axis labels.
	if p.data.XLabel != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%f" y="%f" text-anchor="middle" font-family="Arial, sans-serif" font-size="12">%s</text>`,
			p.margin.Left+plotWidth/2, p.height-10, escape(p.data.XLabel)))
	}
	if p.data.YLabel != "" {
		sb.WriteString(fmt.Sprintf(`<text x="15" y="%f" text-anchor="middle" font-family="Arial, sans-serif" font-size="12" transform="rotate(-90, 15, %f)">%s</text>`,
			p.margin.Top+plotHeight/2, p.margin.Top+plotHeight/2, escape(p.data.YLabel)))
	}

	// Grid and ticks.
	const numTicks = 5
	for i := 0; i <= numTicks; i++ {
		x := xmin + (xmax-xmin)*float64(i)/float64(numTicks)
		px := sx(x)
		sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="#333" stroke-width="1"/>`,
			px, p.margin.Top+plotHeight, px, p.margin.Top+plotHeight+5))
		sb.WriteString(fmt.Sprintf(`<text x="%f" y="%f" text-anchor="middle" font-family="Arial, sans-serif" font-size="10">%.4g</text>`,
			px, p.margin.Top+plotHeight+20, x))
		sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="#ddd" stroke-width="0.5"/>`,
			px, p.margin.Top, px, p.margin.Top+plotHeight))
	}
	for i := 0; i <= numTicks; i++ {
		y := ymin + (ymax-ymin)*float64(i)/float64(numTicks)
		py := sy(y)
		sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="#333" stroke-width="1"/>`,
			p.margin.Left-5, py, p.margin.Left, py))
		sb.WriteString(fmt.Sprintf(`<text x="%f" y="%f" text-anchor="end" font-family="Arial, sans-serif" font-size="10">%.4g</text>`,
			p.margin.Left-10, py+4, y))
		sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="#ddd" stroke-width="0.5"/>`,
			p.margin.Left, py, p.margin.Left+plotWidth, py))
	}

	// Series.
	for idx, s := range p.data.Series {
		n := min(len(s.X), len(s.Y))
		if n == 0 {
			continue
		}
		color := s.Color
		if color == "" {
			color = palette[idx%len(palette)]
		}
		if s.Points {
			for i := 0; i < n; i++ {
				sb.WriteString(fmt.Sprintf(`<circle cx="%f" cy="%f" r="3" fill="%s"/>`,
					sx(s.X[i]), sy(s.Y[i]), color))
			}
			continue
		}
		path := strings.Builder{}
		for i := 0; i < n; i++ {
			px := sx(s.X[i])
			py := sy(s.Y[i])
			if i == 0 {
				path.WriteString(fmt.Sprintf("M%f,%f", px, py))
			} else {
				path.WriteString(fmt.Sprintf(" L%f,%f", px, py))
			}
		}
		sb.WriteString(fmt.Sprintf(`<path d="%s" stroke="%s" stroke-width="2" fill="none"/>`,
			path.String(), color))
	}

	// Legend.
	legendY := p.margin.Top + 10
	for idx, s := range p.data.Series {
		if s.Label == "" {
			continue
		}
		color := s.Color
		if color == "" {
			color = palette[idx%len(palette)]
		}
		x1 := p.width - p.margin.Right - 110
		x2 := p.width - p.margin.Right - 90
		if s.Points {
			sb.WriteString(fmt.Sprintf(`<circle cx="%f" cy="%f" r="3" fill="%s"/>`,
				(x1+x2)/2, legendY, color))
		} else {
			sb.WriteString(fmt.Sprintf(`<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="%s" stroke-width="2"/>`,
				x1, legendY, x2, legendY, color))
		}
		sb.WriteString(fmt.Sprintf(`<text x="%f" y="%f" font-family="Arial, sans-serif" font-size="10">%s</text>`,
			x2+5, legendY+4, escape(s.Label)))
		legendY += 20
	}

	sb.WriteString(`</svg>`)
	return sb.String()
}

// PlotSolution charts solved compartment trajectories. With no
// compartments named, every state variable is plotted.
func PlotSolution(sol *solver.Solution, compartments ...string) *SVGPlotter {
	names := compartments
	if len(names) == 0 {
		names = sol.StateLabels
	}
	data := &PlotData{XLabel: "Time (days)", YLabel: "Count"}
	for _, name := range names {
		y := sol.GetVariable(name)
		if y == nil {
			continue
		}
		data.Series = append(data.Series, Series{X: sol.T, Y: y, Label: name})
	}
	return NewSVGPlotter(data)
}

// PlotFit charts a fitted trajectory against the observations it was
// fitted to: the model curve as a line, the data as markers.
func PlotFit(sol *solver.Solution, compartment string, tObs, yObs []float64) *SVGPlotter {
	data := &PlotData{XLabel: "Time (days)", YLabel: "Count"}
	if y := sol.GetVariable(compartment); y != nil {
		data.Series = append(data.Series, Series{X: sol.T, Y: y, Label: compartment + " (model)"})
	}
	data.Series = append(data.Series, Series{X: tObs, Y: yObs, Label: "observed", Points: true})
	return NewSVGPlotter(data)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
