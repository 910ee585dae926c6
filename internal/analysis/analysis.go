// Package analysis computes summary statistics and force peaks for a
// recorded trial.
package analysis

import (
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"forcetrial/internal/trial"
)

const (
	DefaultPeakInterval = 10
	DefaultMinHeight    = 1.0
)

// Options controls the peak search.
type Options struct {
	// PeakInterval is the minimum index separation between reported peaks.
	PeakInterval int `json:"peak_interval"`
	// MinHeight is the lowest value that can be a peak.
	MinHeight float64 `json:"min_peak_height"`
}

func DefaultOptions() Options {
	return Options{PeakInterval: DefaultPeakInterval, MinHeight: DefaultMinHeight}
}

func (o Options) Validate() error {
	if o.PeakInterval < 1 {
		return &trial.ConfigError{Field: "peak_interval", Reason: "must be >= 1"}
	}
	return nil
}

// Measure is a statistic that may be undefined.
type Measure struct {
	Value float64
	Valid bool
}

func Defined(v float64) Measure { return Measure{Value: v, Valid: true} }

func (m Measure) String() string {
	if !m.Valid {
		return "undefined"
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64)
}

// Stats summarizes all values of a trial. StdDev is the sample (n-1)
// standard deviation. PeakMean averages the detected peaks only.
type Stats struct {
	Max      float64
	Min      float64
	Mean     float64
	StdDev   Measure
	PeakMean Measure
}

// Peak is one detected peak.
type Peak struct {
	Index   int     `json:"index"`
	Elapsed float64 `json:"elapsed"`
	Value   float64 `json:"value"`
}

// Report is the outcome of analyzing one trial.
type Report struct {
	TrialID string
	Options Options
	Stats   Stats
	Peaks   []Peak
	// Degraded is set when the report could only be partially computed.
	Degraded *InsufficientDataError
}

func (r *Report) PeakValues() []float64 {
	out := make([]float64, len(r.Peaks))
	for i, p := range r.Peaks {
		out[i] = p.Value
	}
	return out
}

// Analyze computes statistics and peaks for snap.
//
// An empty record fails with *EmptyRecordError. A single-sample record
// yields a degraded report (undefined standard deviation and peak mean, no
// peaks) with a nil error. Otherwise a peak search that finds nothing fails
// with *NoPeaksFoundError and no report.
func Analyze(snap trial.Snapshot, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, &EmptyRecordError{TrialID: snap.ID()}
	}

	values := snap.Values()
	rep := &Report{
		TrialID: snap.ID(),
		Options: opts,
		Stats: Stats{
			Max:  floats.Max(values),
			Min:  floats.Min(values),
			Mean: stat.Mean(values, nil),
		},
	}

	if len(values) < 2 {
		rep.Degraded = &InsufficientDataError{TrialID: snap.ID(), Count: len(values)}
		return rep, nil
	}
	rep.Stats.StdDev = Defined(stat.StdDev(values, nil))

	idx := FindPeaks(values, opts.PeakInterval, opts.MinHeight)
	if len(idx) == 0 {
		return nil, &NoPeaksFoundError{TrialID: snap.ID(), PeakInterval: opts.PeakInterval, MinHeight: opts.MinHeight}
	}

	rep.Peaks = make([]Peak, len(idx))
	for i, p := range idx {
		s := snap.At(p)
		rep.Peaks[i] = Peak{Index: p, Elapsed: s.Elapsed, Value: s.Value}
	}
	rep.Stats.PeakMean = Defined(stat.Mean(rep.PeakValues(), nil))
	return rep, nil
}
