package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/epifit-xyz/go-epifit/epimodel"
	"github.com/epifit-xyz/go-epifit/series"
)

// newNamedModel builds the model variant selected by a -model flag.
func newNamedModel(name string) (*epimodel.Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sir":
		return epimodel.NewSIR(), nil
	case "sirx", "sir-x":
		return epimodel.NewSIRX(), nil
	}
	return nil, fmt.Errorf("unknown model %q (available: sir, sirx)", name)
}

// paramVector assembles the model's parameter vector from a
// "name=value,..." flag. Entries missing from the flag fall back to
// defaults; a parameter in neither is an error, as is a name the model
// does not have.
func paramVector(m *epimodel.Model, spec string, defaults map[string]float64) ([]float64, error) {
	overrides, err := parseKeyValue(spec)
	if err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	names := m.ParamNames()
	if err := checkKnown(overrides, names, "parameter"); err != nil {
		return nil, err
	}

	vec := make([]float64, len(names))
	for i, n := range names {
		if v, ok := overrides[n]; ok {
			vec[i] = v
		} else if v, ok := defaults[n]; ok {
			vec[i] = v
		} else {
			return nil, fmt.Errorf("missing parameter %s (set it with -params \"%s=...\")", n, n)
		}
	}
	return vec, nil
}

// icVector assembles initial conditions (absolute counts) from a
// "compartment=value,..." flag, with the same fallback rules as
// paramVector.
func icVector(m *epimodel.Model, spec string, defaults []float64) ([]float64, error) {
	overrides, err := parseKeyValue(spec)
	if err != nil {
		return nil, fmt.Errorf("parse initial conditions: %w", err)
	}
	names := m.Compartments()
	if err := checkKnown(overrides, names, "compartment"); err != nil {
		return nil, err
	}

	vec := make([]float64, len(names))
	for i, n := range names {
		if v, ok := overrides[n]; ok {
			vec[i] = v
		} else if defaults != nil {
			vec[i] = defaults[i]
		} else {
			return nil, fmt.Errorf("missing compartment %s (set it with -ic \"%s=...\")", n, n)
		}
	}
	return vec, nil
}

func checkKnown(got map[string]float64, names []string, kind string) error {
	for k := range got {
		found := false
		for _, n := range names {
			if n == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown %s %q (available: %s)", kind, k, strings.Join(names, ", "))
		}
	}
	return nil
}

// parseKeyValue parses "key1=val1,key2=val2" format.
func parseKeyValue(s string) (map[string]float64, error) {
	result := make(map[string]float64)

	if s == "" {
		return result, nil
	}

	pairs := strings.Split(s, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid format: %s (expected key=value)", pair)
		}

		key := strings.TrimSpace(parts[0])
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %s", key, parts[1])
		}

		result[key] = value
	}

	return result, nil
}

// parseNameList splits a comma-separated name list, trimming blanks.
func parseNameList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadSeries reads a case series from either a two-column CSV file or a
// JHU wide-layout file with a region selector. Exactly one source must
// be given.
func loadSeries(csvPath, jhuPath, region string) (*series.Series, error) {
	switch {
	case csvPath != "" && jhuPath != "":
		return nil, fmt.Errorf("-csv and -jhu are mutually exclusive")
	case jhuPath != "":
		if region == "" {
			return nil, fmt.Errorf("-jhu requires -region")
		}
		f, err := os.Open(jhuPath)
		if err != nil {
			return nil, fmt.Errorf("open series: %w", err)
		}
		defer f.Close()
		return series.LoadJHU(f, region)
	case csvPath != "":
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, fmt.Errorf("open series: %w", err)
		}
		defer f.Close()
		return series.LoadCSV(f, series.DefaultCSVConfig())
	}
	return nil, fmt.Errorf("a case series is required (-csv or -jhu)")
}
