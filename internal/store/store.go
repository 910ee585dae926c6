// Package store persists trial records and their analysis reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"forcetrial/internal/analysis"
	"forcetrial/internal/trial"
)

var (
	// ErrNotFound is returned when a requested trial or report does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for identifiers that cannot name a trial.
	ErrInvalidID = errors.New("invalid trial id")
)

// Store is the persistence contract the acquisition and analysis layers
// depend on. Implementations must be safe for concurrent use.
type Store interface {
	// SaveTrial writes snap under snap.ID(), replacing any previous trial of
	// that id together with its report.
	SaveTrial(ctx context.Context, snap trial.Snapshot) error
	// LoadTrial returns ErrNotFound when no trial is stored under id.
	LoadTrial(ctx context.Context, id string) (trial.Snapshot, error)
	// DeleteTrial removes the trial and its report, reporting whether
	// anything was removed.
	DeleteTrial(ctx context.Context, id string) (bool, error)
	// SaveReport stores rep for the trial rep.TrialID, which must exist.
	SaveReport(ctx context.Context, rep *analysis.Report) error
	// LoadReport returns ErrNotFound when the trial has no report.
	LoadReport(ctx context.Context, id string) (*analysis.Report, error)
}

// ValidateID rejects empty identifiers and ones that could escape a
// storage directory.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
