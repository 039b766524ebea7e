package results

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrNoTrajectory is returned by WriteCSV for reports that carry no
// trajectory data.
var ErrNoTrajectory = errors.New("report has no trajectory")

// WriteJSON writes a report as indented JSON.
func WriteJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ReadJSON reads a report written by WriteJSON.
func ReadJSON(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

// ToJSON renders a report as an indented JSON string.
func ToJSON(rep *Report) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON parses a report from a JSON string.
func FromJSON(s string) (*Report, error) {
	var rep Report
	if err := json.Unmarshal([]byte(s), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// WriteCSV writes the report's stored trajectory as CSV rows of
// (t, compartments...), matching the layout of Solution.WriteCSV.
func WriteCSV(w io.Writer, rep *Report) error {
	if rep == nil || rep.Trajectory == nil || len(rep.Trajectory.Times) == 0 {
		return ErrNoTrajectory
	}
	tr := rep.Trajectory

	cw := csv.NewWriter(w)
	header := append([]string{"t"}, tr.Compartments...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(tr.Compartments)+1)
	for i, t := range tr.Times {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, name := range tr.Compartments {
			series := tr.Series[name]
			if i >= len(series) {
				return fmt.Errorf("series %q has %d points, want %d", name, len(series), len(tr.Times))
			}
			row[j+1] = strconv.FormatFloat(series[i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
