package analysis

import "fmt"

// EmptyRecordError is returned when the record holds no samples.
type EmptyRecordError struct {
	TrialID string
}

func (e *EmptyRecordError) Error() string {
	return fmt.Sprintf("trial %q has no samples to analyze", e.TrialID)
}

// InsufficientDataError marks a report computed from fewer than two samples:
// the standard deviation is undefined and no peaks can be searched for.
type InsufficientDataError struct {
	TrialID string
	Count   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("trial %q has %d sample(s); need at least 2 for standard deviation", e.TrialID, e.Count)
}

// NoPeaksFoundError is returned when the peak search yields nothing. No
// report is produced.
type NoPeaksFoundError struct {
	TrialID      string
	PeakInterval int
	MinHeight    float64
}

func (e *NoPeaksFoundError) Error() string {
	return fmt.Sprintf("no peaks found in trial %q (interval %d, min height %g)", e.TrialID, e.PeakInterval, e.MinHeight)
}
