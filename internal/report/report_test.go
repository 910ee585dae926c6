package report

import (
	"bytes"
	"strings"
	"testing"

	"forcetrial/internal/analysis"
	"forcetrial/internal/trial"
)

func testTrial() (trial.Snapshot, *analysis.Report) {
	values := []float64{0, 2, 0, 3, 0, 5, 0}
	samples := make([]trial.Sample, len(values))
	for i, v := range values {
		samples[i] = trial.Sample{Elapsed: float64(i) * 0.25, Value: v}
	}
	snap := trial.NewSnapshot("bench-7", samples)
	rep, err := analysis.Analyze(snap, analysis.Options{PeakInterval: 1, MinHeight: 1})
	if err != nil {
		panic(err)
	}
	return snap, rep
}

func TestWriteSummary_Layout(t *testing.T) {
	_, rep := testTrial()

	var buf bytes.Buffer
	if err := WriteSummary(&buf, rep); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	wantPrefixes := []string{
		"Summary Stats for bench-7",
		"Max force,5",
		"Min force,0",
		"Avg force,",
		"Std Dev force,",
		"Avg peak force,3.33",
		"Peak Values",
		"Time,Force",
		"0.25,2",
		"0.75,3",
		"1.25,5",
	}
	if len(lines) != len(wantPrefixes) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(wantPrefixes), len(lines), buf.String())
	}
	for i, want := range wantPrefixes {
		if !strings.HasPrefix(lines[i], want) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], want)
		}
	}
}

func TestSummary_RoundTrip(t *testing.T) {
	_, rep := testTrial()

	var buf bytes.Buffer
	if err := WriteSummary(&buf, rep); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}
	got, err := ReadSummary(&buf)
	if err != nil {
		t.Fatalf("ReadSummary failed: %v", err)
	}

	if got.TrialID != rep.TrialID {
		t.Errorf("trial id %q, want %q", got.TrialID, rep.TrialID)
	}
	if got.Stats.Max != rep.Stats.Max || got.Stats.Min != rep.Stats.Min || got.Stats.Mean != rep.Stats.Mean {
		t.Errorf("stats %+v, want %+v", got.Stats, rep.Stats)
	}
	if got.Stats.StdDev != rep.Stats.StdDev || got.Stats.PeakMean != rep.Stats.PeakMean {
		t.Errorf("measures %+v, want %+v", got.Stats, rep.Stats)
	}
	if len(got.Peaks) != len(rep.Peaks) {
		t.Fatalf("expected %d peaks, got %d", len(rep.Peaks), len(got.Peaks))
	}
	for i := range got.Peaks {
		if got.Peaks[i].Elapsed != rep.Peaks[i].Elapsed || got.Peaks[i].Value != rep.Peaks[i].Value {
			t.Errorf("peak %d = %+v, want %+v", i, got.Peaks[i], rep.Peaks[i])
		}
	}
}

func TestSummary_UndefinedStdDev(t *testing.T) {
	rep, err := analysis.Analyze(trial.NewSnapshot("single", []trial.Sample{{Elapsed: 0, Value: 3}}), analysis.DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	var buf bytes.Buffer
	WriteSummary(&buf, rep)
	if !strings.Contains(buf.String(), "Std Dev force,undefined") {
		t.Errorf("expected undefined stddev in:\n%s", buf.String())
	}

	got, err := ReadSummary(&buf)
	if err != nil {
		t.Fatalf("ReadSummary failed: %v", err)
	}
	if got.Stats.StdDev.Valid {
		t.Error("expected undefined stddev after reading back")
	}
}

func TestReadSummary_Rejects(t *testing.T) {
	tests := map[string]string{
		"truncated":    "Summary Stats for x\nMax force,1\n",
		"wrong title":  "Stats\nMax force,1\nMin force,1\nAvg force,1\nStd Dev force,1\nAvg peak force,1\nPeak Values\nTime,Force\n",
		"bad number":   "Summary Stats for x\nMax force,abc\nMin force,1\nAvg force,1\nStd Dev force,1\nAvg peak force,1\nPeak Values\nTime,Force\n",
		"label order":  "Summary Stats for x\nMin force,1\nMax force,1\nAvg force,1\nStd Dev force,1\nAvg peak force,1\nPeak Values\nTime,Force\n",
		"bad peak row": "Summary Stats for x\nMax force,1\nMin force,1\nAvg force,1\nStd Dev force,1\nAvg peak force,1\nPeak Values\nTime,Force\n1\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadSummary(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRenderPlot(t *testing.T) {
	snap, rep := testTrial()
	png, err := RenderPlot(snap, rep)
	if err != nil {
		t.Fatalf("RenderPlot failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}

	if _, err := RenderPlot(trial.Snapshot{}, nil); err == nil {
		t.Error("expected error for empty snapshot")
	}
}

func TestWritePDF(t *testing.T) {
	snap, rep := testTrial()
	png, err := RenderPlot(snap, rep)
	if err != nil {
		t.Fatalf("RenderPlot failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WritePDF(&buf, snap, rep, png); err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
}
