package trial

import (
	"errors"
	"testing"
)

func TestRecord_Append(t *testing.T) {
	t.Run("keeps acquisition order", func(t *testing.T) {
		r := NewRecord("run-1")
		for i, v := range []float64{1.5, -2, 3} {
			if err := r.Append(Sample{Elapsed: float64(i) * 0.1, Value: v}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		snap := r.Snapshot()
		if snap.Len() != 3 {
			t.Fatalf("expected 3 samples, got %d", snap.Len())
		}
		if snap.At(1).Value != -2 {
			t.Errorf("expected second value -2, got %v", snap.At(1).Value)
		}
		if snap.ID() != "run-1" {
			t.Errorf("expected id run-1, got %q", snap.ID())
		}
	})

	t.Run("rejects decreasing elapsed time", func(t *testing.T) {
		r := NewRecord("run-1")
		r.Append(Sample{Elapsed: 1.0})
		if err := r.Append(Sample{Elapsed: 0.5}); err == nil {
			t.Error("expected error for decreasing elapsed time")
		}
	})

	t.Run("equal elapsed times are allowed", func(t *testing.T) {
		r := NewRecord("run-1")
		r.Append(Sample{Elapsed: 1.0})
		if err := r.Append(Sample{Elapsed: 1.0}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("finalized record rejects appends", func(t *testing.T) {
		r := NewRecord("run-1")
		r.Append(Sample{Elapsed: 0, Value: 1})
		snap := r.Finalize()
		err := r.Append(Sample{Elapsed: 1, Value: 2})
		if !errors.Is(err, ErrFinalized) {
			t.Errorf("expected ErrFinalized, got %v", err)
		}
		if snap.Len() != 1 {
			t.Errorf("snapshot changed after finalize: %d samples", snap.Len())
		}
	})
}

func TestSnapshot_IsImmutable(t *testing.T) {
	r := NewRecord("run-1")
	r.Append(Sample{Elapsed: 0, Value: 1})
	snap := r.Snapshot()
	r.Append(Sample{Elapsed: 1, Value: 2})

	if snap.Len() != 1 {
		t.Errorf("snapshot saw later append: %d samples", snap.Len())
	}

	samples := snap.Samples()
	samples[0].Value = 99
	if snap.At(0).Value != 1 {
		t.Errorf("mutating Samples() result changed snapshot")
	}
}

func TestRecord_Tail(t *testing.T) {
	r := NewRecord("run-1")
	for i := 0; i < 5; i++ {
		r.Append(Sample{Elapsed: float64(i), Value: float64(i * 10)})
	}

	times, values := r.Tail(3)
	if len(times) != 3 || times[0] != 2 || values[2] != 40 {
		t.Errorf("unexpected tail: times=%v values=%v", times, values)
	}

	times, _ = r.Tail(10)
	if len(times) != 5 {
		t.Errorf("expected whole record when n exceeds length, got %d", len(times))
	}
}
