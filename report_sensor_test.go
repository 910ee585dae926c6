package forcetrial

import (
	"context"
	"errors"
	"testing"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"

	"forcetrial/internal/acquisition"
	"forcetrial/internal/analysis"
	"forcetrial/internal/store"
)

func TestReportSensorConfig(t *testing.T) {
	t.Run("requires analyzer", func(t *testing.T) {
		cfg := &ReportSensorConfig{}
		_, _, err := cfg.Validate("test")
		if err == nil {
			t.Error("expected error for missing analyzer")
		}
	})

	t.Run("valid config returns analyzer as dependency", func(t *testing.T) {
		cfg := &ReportSensorConfig{Analyzer: "my-analyzer"}
		deps, _, err := cfg.Validate("test")
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		want := resource.NewName(generic.API, "my-analyzer").String()
		if len(deps) != 1 || deps[0] != want {
			t.Errorf("expected [%s], got %v", want, deps)
		}
	})
}

func reportSensorConfig(analyzer string, includePeaks bool) resource.Config {
	return resource.Config{
		Name:                "report",
		API:                 sensor.API,
		Model:               ReportSensor,
		ConvertedAttributes: &ReportSensorConfig{Analyzer: analyzer, IncludePeaks: includePeaks},
	}
}

// newTestReportSensor wires a report sensor to a fresh analyzer.
func newTestReportSensor(t *testing.T, includePeaks bool) (sensor.Sensor, *trialAnalyzer, *store.MemoryStore) {
	t.Helper()
	a, trials := newTestAnalyzer(t, analysis.Options{PeakInterval: 1, MinHeight: 1})
	deps := resource.Dependencies{a.Name(): a}
	s, err := newReportSensor(context.Background(), deps, reportSensorConfig(a.Name().Name, includePeaks), logging.NewTestLogger(t))
	if err != nil {
		t.Fatalf("newReportSensor failed: %v", err)
	}
	return s, a, trials
}

func analyzeTrial(t *testing.T, a *trialAnalyzer, trials *store.MemoryStore, id string, values ...float64) {
	t.Helper()
	ctx := context.Background()
	if err := trials.SaveTrial(ctx, makeSnapshot(id, values...)); err != nil {
		t.Fatalf("SaveTrial failed: %v", err)
	}
	if _, err := a.DoCommand(ctx, map[string]interface{}{"command": "analyze", "trial_id": id}); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
}

func TestReportSensor_Constructor(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("fails if analyzer not found", func(t *testing.T) {
		_, err := newReportSensor(context.Background(), resource.Dependencies{}, reportSensorConfig("missing", false), logger)
		if err == nil {
			t.Error("expected error when analyzer not found")
		}
	})

	t.Run("fails if dependency is not an analyzer", func(t *testing.T) {
		fs, _ := newTestForceSensor(t, fastMock(), acquisition.DefaultConfig())
		deps := resource.Dependencies{resource.NewName(generic.API, "plain"): fs}
		_, err := newReportSensor(context.Background(), deps, reportSensorConfig("plain", false), logger)
		if err == nil {
			t.Error("expected error for dependency without reports")
		}
	})
}

func TestReportSensor_Readings(t *testing.T) {
	ctx := context.Background()

	t.Run("no report before analysis", func(t *testing.T) {
		s, _, _ := newTestReportSensor(t, false)
		readings, err := s.Readings(ctx, nil)
		if err != nil {
			t.Fatalf("Readings failed: %v", err)
		}
		if readings["status"] != "no_report" {
			t.Errorf("expected no_report, got %v", readings["status"])
		}
	})

	t.Run("latest report is flat by default", func(t *testing.T) {
		s, a, trials := newTestReportSensor(t, false)
		analyzeTrial(t, a, trials, "t1", 0, 2, 0, 3, 0)

		readings, err := s.Readings(ctx, nil)
		if err != nil {
			t.Fatalf("Readings failed: %v", err)
		}
		if readings["trial_id"] != "t1" || readings["peak_count"] != 2 || readings["max_force"] != 3.0 {
			t.Errorf("unexpected readings %v", readings)
		}
		if readings["avg_peak_force"] != 2.5 {
			t.Errorf("expected avg_peak_force=2.5, got %v", readings["avg_peak_force"])
		}
		if _, ok := readings["peak_values"]; ok {
			t.Error("peak lists present without include_peaks")
		}
	})

	t.Run("include_peaks adds peak lists", func(t *testing.T) {
		s, a, trials := newTestReportSensor(t, true)
		analyzeTrial(t, a, trials, "t1", 0, 2, 0, 3, 0)

		readings, _ := s.Readings(ctx, nil)
		values, ok := readings["peak_values"].([]interface{})
		if !ok || len(values) != 2 || values[0] != 2.0 || values[1] != 3.0 {
			t.Errorf("unexpected peak_values %v", readings["peak_values"])
		}
	})

	t.Run("trial_id selects a stored report", func(t *testing.T) {
		s, a, trials := newTestReportSensor(t, false)
		analyzeTrial(t, a, trials, "first", 0, 4, 0)
		analyzeTrial(t, a, trials, "second", 0, 2, 0, 3, 0)

		readings, err := s.Readings(ctx, map[string]interface{}{"trial_id": "first"})
		if err != nil {
			t.Fatalf("Readings failed: %v", err)
		}
		if readings["trial_id"] != "first" || readings["max_force"] != 4.0 {
			t.Errorf("unexpected readings %v", readings)
		}

		_, err = s.Readings(ctx, map[string]interface{}{"trial_id": "unknown"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("data management captures each report once", func(t *testing.T) {
		s, a, trials := newTestReportSensor(t, false)

		if _, err := s.Readings(ctx, data.FromDMExtraMap); !errors.Is(err, data.ErrNoCaptureToStore) {
			t.Errorf("expected nothing to capture before analysis, got %v", err)
		}

		analyzeTrial(t, a, trials, "t1", 0, 2, 0, 3, 0)
		readings, err := s.Readings(ctx, data.FromDMExtraMap)
		if err != nil {
			t.Fatalf("first capture failed: %v", err)
		}
		if readings["trial_id"] != "t1" {
			t.Errorf("captured wrong trial %v", readings["trial_id"])
		}
		if _, err := s.Readings(ctx, data.FromDMExtraMap); !errors.Is(err, data.ErrNoCaptureToStore) {
			t.Errorf("expected repeated capture to be skipped, got %v", err)
		}

		// Plain readings are unaffected by capture state.
		if readings, err := s.Readings(ctx, nil); err != nil || readings["trial_id"] != "t1" {
			t.Errorf("plain readings changed: %v, %v", readings, err)
		}

		analyzeTrial(t, a, trials, "t2", 0, 5, 0)
		readings, err = s.Readings(ctx, data.FromDMExtraMap)
		if err != nil {
			t.Fatalf("second capture failed: %v", err)
		}
		if readings["trial_id"] != "t2" {
			t.Errorf("captured wrong trial %v", readings["trial_id"])
		}
	})

	t.Run("DoCommand is unsupported", func(t *testing.T) {
		s, _, _ := newTestReportSensor(t, false)
		if _, err := s.DoCommand(ctx, map[string]interface{}{"command": "anything"}); err == nil {
			t.Error("expected DoCommand to be unsupported")
		}
	})
}
