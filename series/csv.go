package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// CSVConfig configures two-column CSV parsing.
type CSVConfig struct {
	TimeColumn  int      // Column index of the time value (default: 0)
	ValueColumn int      // Column index of the count value (default: 1)
	Delimiter   rune     // Field delimiter (default: comma)
	SkipRows    int      // Leading rows to skip before parsing
	TimeFormats []string // Date formats to try when times are not numeric
}

// DefaultCSVConfig returns a configuration for "time,count" layouts.
// Times may be day offsets or calendar dates; dates are converted to
// elapsed days since the first row.
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		TimeColumn:  0,
		ValueColumn: 1,
		Delimiter:   ',',
		SkipRows:    0,
		TimeFormats: []string{
			time.RFC3339,
			"2006-01-02",
			"2006-01-02 15:04:05",
			"01/02/2006",
			"1/2/06",
		},
	}
}

// LoadCSV reads a two-column case series. A first row whose time cell
// parses as neither a number nor a date is treated as a header. Times
// given as dates become day offsets from the first data row.
func LoadCSV(r io.Reader, cfg CSVConfig) (*Series, error) {
	reader := csv.NewReader(r)
	if cfg.Delimiter != 0 {
		reader.Comma = cfg.Delimiter
	}
	reader.FieldsPerRecord = -1

	for i := 0; i < cfg.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, fmt.Errorf("series: skipping row %d: %w", i+1, ErrMalformedCSV)
		}
	}

	var (
		times  []float64
		dates  []time.Time
		counts []float64
	)
	line := cfg.SkipRows
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("series: line %d: %v: %w", line, err, ErrMalformedCSV)
		}
		if len(record) <= cfg.TimeColumn || len(record) <= cfg.ValueColumn {
			return nil, fmt.Errorf("series: line %d: %d columns, need %d: %w",
				line, len(record), max(cfg.TimeColumn, cfg.ValueColumn)+1, ErrMalformedCSV)
		}

		timeCell := strings.TrimSpace(record[cfg.TimeColumn])
		valueCell := strings.TrimSpace(record[cfg.ValueColumn])

		offset, date, timeErr := parseTimeCell(timeCell, cfg.TimeFormats)
		if timeErr != nil {
			// An unparseable first row is a header.
			if len(times) == 0 && len(dates) == 0 && line == cfg.SkipRows+1 {
				continue
			}
			return nil, fmt.Errorf("series: line %d: bad time %q: %w", line, timeCell, ErrMalformedCSV)
		}

		value, err := strconv.ParseFloat(valueCell, 64)
		if err != nil {
			return nil, fmt.Errorf("series: line %d: bad count %q: %w", line, valueCell, ErrMalformedCSV)
		}

		if date != nil {
			if len(times) > 0 {
				return nil, fmt.Errorf("series: line %d: date after numeric times: %w", line, ErrMalformedCSV)
			}
			dates = append(dates, *date)
		} else {
			if len(dates) > 0 {
				return nil, fmt.Errorf("series: line %d: numeric time after dates: %w", line, ErrMalformedCSV)
			}
			times = append(times, offset)
		}
		counts = append(counts, value)
	}

	if len(counts) == 0 {
		return nil, fmt.Errorf("series: no data rows: %w", ErrMalformedCSV)
	}
	if len(dates) > 0 {
		times = DayOffsets(dates)
	}

	s := &Series{Times: times, Counts: counts}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// parseTimeCell interprets a time cell as a numeric day offset or,
// failing that, as a calendar date in one of the given formats.
func parseTimeCell(cell string, formats []string) (float64, *time.Time, error) {
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v, nil, nil
	}
	for _, format := range formats {
		if d, err := time.Parse(format, cell); err == nil {
			return 0, &d, nil
		}
	}
	return 0, nil, fmt.Errorf("unrecognized time %q", cell)
}

// jhuDateFormat is the layout of JHU situation-report header dates.
const jhuDateFormat = "1/2/06"

// LoadJHU reads a series from the JHU CSSE wide layout: one row per
// region with Province/State, Country/Region, Lat, Long and one column
// per day from column 4 onward. region matches either the province or
// the country cell, case-insensitively; the first matching row wins.
func LoadJHU(r io.Reader, region string) (*Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("series: reading JHU layout: %v: %w", err, ErrMalformedCSV)
	}
	if len(records) < 2 || len(records[0]) < 5 {
		return nil, fmt.Errorf("series: JHU layout needs a header and at least one date column: %w", ErrMalformedCSV)
	}
	header := records[0]

	var row []string
	for _, record := range records[1:] {
		if len(record) < 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(record[0]), region) ||
			strings.EqualFold(strings.TrimSpace(record[1]), region) {
			row = record
			break
		}
	}
	if row == nil {
		return nil, fmt.Errorf("series: region %q: %w", region, ErrNotFound)
	}

	var (
		times  []float64
		counts []float64
		start  time.Time
	)
	for i := 4; i < len(row) && i < len(header); i++ {
		value, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			continue
		}
		date, err := time.Parse(jhuDateFormat, strings.TrimSpace(header[i]))
		if err != nil {
			return nil, fmt.Errorf("series: bad JHU date %q: %w", header[i], ErrMalformedCSV)
		}
		if len(times) == 0 {
			start = date
		}
		times = append(times, date.Sub(start).Hours()/24)
		counts = append(counts, value)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("series: region %q has no numeric observations: %w", region, ErrMalformedCSV)
	}

	s := &Series{Name: region, Region: region, Times: times, Counts: counts}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
