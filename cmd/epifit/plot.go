package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/epifit-xyz/go-epifit/plotter"
	"github.com/epifit-xyz/go-epifit/results"
)

func plot(args []string) error {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	in := fs.String("in", "", "Report JSON file (required)")
	out := fs.String("out", "", "Output SVG file (required)")
	vars := fs.String("vars", "", "Compartments to plot, comma-separated (default: all)")
	title := fs.String("title", "", "Chart title (default: model name)")
	width := fs.Float64("width", 900, "Chart width in pixels")
	height := fs.Float64("height", 600, "Chart height in pixels")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: epifit plot -in report.json -out chart.svg [options]

Render the trajectory stored in a report as an SVG chart.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # All compartments
  epifit plot -in report.json -out chart.svg

  # Just the infected and quarantined pools, larger canvas
  epifit plot -in report.json -out chart.svg -vars "I,X" -width 1200 -height 800
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("-in and -out required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	rep, err := results.ReadJSON(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	if rep.Trajectory == nil || rep.Trajectory.Points == 0 {
		return results.ErrNoTrajectory
	}

	wanted := parseNameList(*vars)
	include := func(name string) bool {
		if wanted == nil {
			return true
		}
		for _, w := range wanted {
			if w == name {
				return true
			}
		}
		return false
	}

	data := &plotter.PlotData{
		Title:  *title,
		XLabel: "Time (days)",
		YLabel: "Count",
	}
	if data.Title == "" {
		data.Title = rep.Model
	}
	for _, name := range rep.Trajectory.Compartments {
		if !include(name) {
			continue
		}
		data.Series = append(data.Series, plotter.Series{
			X:     rep.Trajectory.Times,
			Y:     rep.Trajectory.Series[name],
			Label: name,
		})
	}
	if len(data.Series) == 0 {
		return fmt.Errorf("no matching compartments (report has: %v)", rep.Trajectory.Compartments)
	}

	p := plotter.NewSVGPlotter(data).SetSize(*width, *height)
	g, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create SVG: %w", err)
	}
	defer g.Close()
	if err := p.Render(g); err != nil {
		return fmt.Errorf("write SVG: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Plot saved to %s\n", *out)
	return nil
}
