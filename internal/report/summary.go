// Package report renders analysis results: the labeled summary table
// exchanged with storage, a plot of the trial with its peaks, and a PDF.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"forcetrial/internal/analysis"
)

// Summary labels, in the order they are written.
const (
	titlePrefix    = "Summary Stats for "
	labelMax       = "Max force"
	labelMin       = "Min force"
	labelMean      = "Avg force"
	labelStdDev    = "Std Dev force"
	labelPeakMean  = "Avg peak force"
	labelPeaks     = "Peak Values"
	labelPeakTime  = "Time"
	labelPeakForce = "Force"
	undefined      = "undefined"
)

// WriteSummary writes rep as a labeled key/value block followed by the peak
// table: max, min, mean, stddev, peak mean, then one time/force row per peak.
func WriteSummary(w io.Writer, rep *analysis.Report) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{titlePrefix + rep.TrialID},
		{labelMax, formatFloat(rep.Stats.Max)},
		{labelMin, formatFloat(rep.Stats.Min)},
		{labelMean, formatFloat(rep.Stats.Mean)},
		{labelStdDev, rep.Stats.StdDev.String()},
		{labelPeakMean, rep.Stats.PeakMean.String()},
		{labelPeaks},
		{labelPeakTime, labelPeakForce},
	}
	for _, p := range rep.Peaks {
		rows = append(rows, []string{formatFloat(p.Elapsed), formatFloat(p.Value)})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// ReadSummary parses the output of WriteSummary. Peak indices are not part
// of the format and are left at -1.
func ReadSummary(r io.Reader) (*analysis.Report, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	if len(rows) < 8 {
		return nil, errors.New("summary is truncated")
	}

	title := rows[0][0]
	if !strings.HasPrefix(title, titlePrefix) {
		return nil, fmt.Errorf("unexpected summary title %q", title)
	}
	rep := &analysis.Report{TrialID: strings.TrimPrefix(title, titlePrefix)}

	fields := []struct {
		label string
		dst   *analysis.Measure
	}{
		{labelMax, nil}, {labelMin, nil}, {labelMean, nil},
		{labelStdDev, &rep.Stats.StdDev}, {labelPeakMean, &rep.Stats.PeakMean},
	}
	plain := []*float64{&rep.Stats.Max, &rep.Stats.Min, &rep.Stats.Mean}
	for i, f := range fields {
		row := rows[i+1]
		if len(row) != 2 || row[0] != f.label {
			return nil, fmt.Errorf("summary row %d: expected %q, got %v", i+2, f.label, row)
		}
		m, err := parseMeasure(row[1])
		if err != nil {
			return nil, fmt.Errorf("summary %s: %w", f.label, err)
		}
		if f.dst != nil {
			*f.dst = m
			continue
		}
		if !m.Valid {
			return nil, fmt.Errorf("summary %s is undefined", f.label)
		}
		*plain[i] = m.Value
	}

	if rows[6][0] != labelPeaks {
		return nil, fmt.Errorf("expected %q section, got %v", labelPeaks, rows[6])
	}
	for i, row := range rows[8:] {
		if len(row) != 2 {
			return nil, fmt.Errorf("peak row %d: expected 2 fields, got %d", i+1, len(row))
		}
		ts, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("peak row %d time: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("peak row %d force: %w", i+1, err)
		}
		rep.Peaks = append(rep.Peaks, analysis.Peak{Index: -1, Elapsed: ts, Value: v})
	}
	return rep, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseMeasure(s string) (analysis.Measure, error) {
	if s == undefined {
		return analysis.Measure{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return analysis.Measure{}, err
	}
	return analysis.Defined(v), nil
}
