package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "simulate":
		if err := simulate(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "fit":
		if err := fitCmd(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "metrics":
		if err := metrics(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "sweep":
		if err := sweep(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "plot":
		if err := plot(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "store":
		if err := store(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("epifit version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`epifit - epidemic model fitting and simulation tool

Usage:
  epifit <command> [options]

Commands:
  simulate   Integrate an SIR or SIR-X model forward in time
  fit        Fit model parameters to an observed case series
  metrics    Print derived metrics for given SIR-X parameters
  sweep      Score one parameter across a range of values
  plot       Render an SVG chart from a stored report
  store      Manage case series in a SQLite database
  help       Show this help message
  version    Show version information

Examples:
  # Simulate a textbook SIR outbreak
  epifit simulate -model sir -params "alpha=0.4,beta=0.2" -ic "S=990,I=10,R=0" -days 60

  # Fit SIR-X containment parameters to confirmed cases
  epifit fit -csv guangdong.csv -population 104300000 -out report.json -plot fit.svg

  # Re-render a stored report
  epifit plot -in report.json -out chart.svg

  # Keep series in a local database
  epifit store -db cases.db put -csv guangdong.csv -name Guangdong -population 104300000
  epifit store -db cases.db list

For command-specific help, run:
  epifit <command> --help`)
}
