package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"forcetrial/internal/trial"
)

// WriteTrial writes snap as header-less two-column CSV: elapsed seconds and
// force value, one row per sample.
func WriteTrial(w io.Writer, snap trial.Snapshot) error {
	cw := csv.NewWriter(w)
	for i := 0; i < snap.Len(); i++ {
		s := snap.At(i)
		row := []string{
			strconv.FormatFloat(s.Elapsed, 'g', -1, 64),
			strconv.FormatFloat(s.Value, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing sample %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTrial parses the format written by WriteTrial.
func ReadTrial(r io.Reader, id string) (trial.Snapshot, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.ReuseRecord = true

	rec := trial.NewRecord(id)
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return trial.Snapshot{}, fmt.Errorf("trial %q row %d: %w", id, row, err)
		}
		elapsed, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return trial.Snapshot{}, fmt.Errorf("trial %q row %d elapsed: %w", id, row, err)
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return trial.Snapshot{}, fmt.Errorf("trial %q row %d value: %w", id, row, err)
		}
		if err := rec.Append(trial.Sample{Elapsed: elapsed, Value: value}); err != nil {
			return trial.Snapshot{}, fmt.Errorf("trial %q row %d: %w", id, row, err)
		}
	}
	return rec.Finalize(), nil
}
