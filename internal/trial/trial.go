// Package trial holds the data model shared by acquisition, analysis and
// storage: timestamped force samples and the record of one run.
package trial

import (
	"errors"
	"fmt"
)

// ErrFinalized is returned when appending to a record that has been finalized.
var ErrFinalized = errors.New("trial record is finalized")

// Sample is one accepted force reading. Elapsed is seconds since the first
// post-stabilization sample.
type Sample struct {
	Elapsed float64 `json:"elapsed"`
	Value   float64 `json:"value"`
}

// Record is the append-ordered sample sequence of one run. It is owned by a
// single writer and is not safe for concurrent use.
type Record struct {
	id        string
	samples   []Sample
	finalized bool
}

func NewRecord(id string) *Record {
	return &Record{id: id}
}

func (r *Record) ID() string { return r.id }

func (r *Record) Len() int { return len(r.samples) }

// Append adds s to the end of the record. Elapsed times must be
// non-decreasing.
func (r *Record) Append(s Sample) error {
	if r.finalized {
		return ErrFinalized
	}
	if s.Elapsed < 0 {
		return fmt.Errorf("sample elapsed time %v is negative", s.Elapsed)
	}
	if n := len(r.samples); n > 0 && s.Elapsed < r.samples[n-1].Elapsed {
		return fmt.Errorf("sample elapsed time %v precedes previous %v", s.Elapsed, r.samples[n-1].Elapsed)
	}
	r.samples = append(r.samples, s)
	return nil
}

// Snapshot returns an immutable copy of the current contents without
// finalizing the record.
func (r *Record) Snapshot() Snapshot {
	return NewSnapshot(r.id, r.samples)
}

// Finalize freezes the record and returns its snapshot. Subsequent appends
// fail with ErrFinalized.
func (r *Record) Finalize() Snapshot {
	r.finalized = true
	return r.Snapshot()
}

func (r *Record) Finalized() bool { return r.finalized }

// Tail returns copies of the elapsed times and values of the last n samples.
func (r *Record) Tail(n int) (times, values []float64) {
	start := len(r.samples) - n
	if start < 0 {
		start = 0
	}
	tail := r.samples[start:]
	times = make([]float64, len(tail))
	values = make([]float64, len(tail))
	for i, s := range tail {
		times[i] = s.Elapsed
		values[i] = s.Value
	}
	return times, values
}

// Snapshot is a read-only view of a record. The zero value is an empty
// snapshot with no identifier.
type Snapshot struct {
	id      string
	samples []Sample
}

// NewSnapshot copies samples into a new snapshot.
func NewSnapshot(id string, samples []Sample) Snapshot {
	cp := make([]Sample, len(samples))
	copy(cp, samples)
	return Snapshot{id: id, samples: cp}
}

func (s Snapshot) ID() string { return s.id }

func (s Snapshot) Len() int { return len(s.samples) }

func (s Snapshot) At(i int) Sample { return s.samples[i] }

// Samples returns a copy of the samples in acquisition order.
func (s Snapshot) Samples() []Sample {
	cp := make([]Sample, len(s.samples))
	copy(cp, s.samples)
	return cp
}

func (s Snapshot) Times() []float64 {
	out := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Elapsed
	}
	return out
}

func (s Snapshot) Values() []float64 {
	out := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Value
	}
	return out
}

// WithID returns the same samples under another identifier.
func (s Snapshot) WithID(id string) Snapshot {
	return Snapshot{id: id, samples: s.samples}
}
