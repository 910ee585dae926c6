package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.viam.com/rdk/logging"

	"forcetrial/internal/analysis"
	"forcetrial/internal/report"
	"forcetrial/internal/trial"
)

// File name suffixes next to <id>.csv.
const (
	trialSuffix   = ".csv"
	summarySuffix = "_summarystats.csv"
	plotSuffix    = "_peaks.png"
	pdfSuffix     = "_report.pdf"
)

// FileStore keeps each trial as <dir>/<id>.csv and its report as
// <dir>/<id>_summarystats.csv. With artifacts enabled, SaveReport also
// renders <id>_peaks.png and <id>_report.pdf.
type FileStore struct {
	dir       string
	artifacts bool
	logger    logging.Logger
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, artifacts bool, logger logging.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{dir: dir, artifacts: artifacts, logger: logger}, nil
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

func (s *FileStore) path(id, suffix string) string {
	return filepath.Join(s.dir, id+suffix)
}

func (s *FileStore) SaveTrial(ctx context.Context, snap trial.Snapshot) error {
	if err := ValidateID(snap.ID()); err != nil {
		return err
	}
	if _, err := s.removeReport(snap.ID()); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteTrial(&buf, snap); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path(snap.ID(), trialSuffix), buf.Bytes()); err != nil {
		return fmt.Errorf("saving trial %q: %w", snap.ID(), err)
	}
	s.logger.Debugf("saved trial %q (%d samples) to %s", snap.ID(), snap.Len(), s.dir)
	return nil
}

func (s *FileStore) LoadTrial(ctx context.Context, id string) (trial.Snapshot, error) {
	if err := ValidateID(id); err != nil {
		return trial.Snapshot{}, err
	}
	f, err := os.Open(s.path(id, trialSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return trial.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return trial.Snapshot{}, fmt.Errorf("opening trial %q: %w", id, err)
	}
	defer f.Close()
	return ReadTrial(f, id)
}

func (s *FileStore) DeleteTrial(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	removedTrial, err := removeIfExists(s.path(id, trialSuffix))
	if err != nil {
		return false, err
	}
	removedReport, err := s.removeReport(id)
	if err != nil {
		return removedTrial, err
	}
	return removedTrial || removedReport, nil
}

func (s *FileStore) removeReport(id string) (bool, error) {
	removed := false
	for _, suffix := range []string{summarySuffix, plotSuffix, pdfSuffix} {
		ok, err := removeIfExists(s.path(id, suffix))
		if err != nil {
			return removed, err
		}
		removed = removed || ok
	}
	return removed, nil
}

func (s *FileStore) SaveReport(ctx context.Context, rep *analysis.Report) error {
	if err := ValidateID(rep.TrialID); err != nil {
		return err
	}
	snap, err := s.LoadTrial(ctx, rep.TrialID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.WriteSummary(&buf, rep); err != nil {
		return err
	}
	if err := writeFileAtomic(s.path(rep.TrialID, summarySuffix), buf.Bytes()); err != nil {
		return fmt.Errorf("saving report %q: %w", rep.TrialID, err)
	}

	if !s.artifacts {
		return nil
	}
	png, err := report.RenderPlot(snap, rep)
	if err != nil {
		return fmt.Errorf("rendering plot for %q: %w", rep.TrialID, err)
	}
	if err := writeFileAtomic(s.path(rep.TrialID, plotSuffix), png); err != nil {
		return fmt.Errorf("saving plot %q: %w", rep.TrialID, err)
	}
	var pdf bytes.Buffer
	if err := report.WritePDF(&pdf, snap, rep, png); err != nil {
		return fmt.Errorf("rendering pdf for %q: %w", rep.TrialID, err)
	}
	if err := writeFileAtomic(s.path(rep.TrialID, pdfSuffix), pdf.Bytes()); err != nil {
		return fmt.Errorf("saving pdf %q: %w", rep.TrialID, err)
	}
	return nil
}

func (s *FileStore) LoadReport(ctx context.Context, id string) (*analysis.Report, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(id, summarySuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening report %q: %w", id, err)
	}
	defer f.Close()
	return report.ReadSummary(f)
}

// writeFileAtomic replaces path so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func removeIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
