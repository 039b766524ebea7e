package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/epifit-xyz/go-epifit/epimodel"
)

func metrics(args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	params := fs.String("params", "", "SIR-X parameters (format: alpha=0.775,beta=0.125,kappa0=0.05,kappa=0.05)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: epifit metrics -params "alpha=...,beta=...,kappa0=...,kappa=..."

Print the SIR-X derived metrics for a parameter set without running a
simulation. alpha and beta are required; kappa0 and kappa default to 0
(plain SIR dynamics) and ratio is irrelevant here.

Example:
  epifit metrics -params "alpha=0.775,beta=0.125,kappa0=0.038,kappa=0.034"
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	m := epimodel.NewSIRX()
	p, err := paramVector(m, *params, map[string]float64{"kappa0": 0, "kappa": 0, "ratio": 1})
	if err != nil {
		return err
	}
	// Placeholder initial conditions; the derived metrics depend only on
	// the rate parameters.
	if err := m.SetParams(p, []float64{1, 0, 0, 0}); err != nil {
		return err
	}

	derived, err := m.Metrics()
	if err != nil {
		return err
	}
	printMetrics(derived)
	return nil
}
