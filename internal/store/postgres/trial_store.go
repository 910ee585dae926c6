package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"forcetrial/internal/analysis"
	"forcetrial/internal/store"
	"forcetrial/internal/trial"
)

// TrialStore implements store.Store using PostgreSQL. Samples and peaks are
// bulk loaded with COPY.
type TrialStore struct {
	pool *Pool
}

// NewTrialStore creates a new TrialStore. The schema must already be
// migrated; see RunMigrations.
func NewTrialStore(pool *Pool) *TrialStore {
	return &TrialStore{pool: pool}
}

// Compile-time interface check.
var _ store.Store = (*TrialStore)(nil)

// SaveTrial replaces any trial stored under the same id. The old report is
// removed by cascade.
func (s *TrialStore) SaveTrial(ctx context.Context, snap trial.Snapshot) error {
	if err := store.ValidateID(snap.ID()); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM trials WHERE trial_id = $1`, snap.ID()); err != nil {
		return fmt.Errorf("delete previous trial: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO trials (trial_id, sample_count) VALUES ($1, $2)`,
		snap.ID(), snap.Len(),
	); err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}

	samples := snap.Samples()
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"trial_samples"},
		[]string{"trial_id", "seq", "elapsed", "value"},
		pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
			return []any{snap.ID(), i, samples[i].Elapsed, samples[i].Value}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy samples: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *TrialStore) LoadTrial(ctx context.Context, id string) (trial.Snapshot, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT sample_count FROM trials WHERE trial_id = $1`, id).Scan(&count)
	if err != nil {
		if isNotFoundError(err) {
			return trial.Snapshot{}, store.ErrNotFound
		}
		return trial.Snapshot{}, fmt.Errorf("query trial: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT elapsed, value FROM trial_samples WHERE trial_id = $1 ORDER BY seq`, id)
	if err != nil {
		return trial.Snapshot{}, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	rec := trial.NewRecord(id)
	for rows.Next() {
		var smp trial.Sample
		if err := rows.Scan(&smp.Elapsed, &smp.Value); err != nil {
			return trial.Snapshot{}, fmt.Errorf("scan sample: %w", err)
		}
		if err := rec.Append(smp); err != nil {
			return trial.Snapshot{}, fmt.Errorf("trial %q: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return trial.Snapshot{}, fmt.Errorf("iterate samples: %w", err)
	}
	if rec.Len() != count {
		return trial.Snapshot{}, fmt.Errorf("trial %q: expected %d samples, found %d", id, count, rec.Len())
	}
	return rec.Finalize(), nil
}

func (s *TrialStore) DeleteTrial(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trials WHERE trial_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete trial: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SaveReport replaces the report of rep.TrialID. Returns store.ErrNotFound
// if the trial does not exist.
func (s *TrialStore) SaveReport(ctx context.Context, rep *analysis.Report) error {
	if err := store.ValidateID(rep.TrialID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM trial_reports WHERE trial_id = $1`, rep.TrialID); err != nil {
		return fmt.Errorf("delete previous report: %w", err)
	}

	var degraded *int
	if rep.Degraded != nil {
		degraded = &rep.Degraded.Count
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO trial_reports (
			trial_id, peak_interval, min_height, max_force, min_force, avg_force,
			stddev_force, avg_peak, degraded_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rep.TrialID,
		rep.Options.PeakInterval,
		rep.Options.MinHeight,
		rep.Stats.Max,
		rep.Stats.Min,
		rep.Stats.Mean,
		nullable(rep.Stats.StdDev),
		nullable(rep.Stats.PeakMean),
		degraded,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert report: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"trial_peaks"},
		[]string{"trial_id", "seq", "sample_index", "elapsed", "value"},
		pgx.CopyFromSlice(len(rep.Peaks), func(i int) ([]any, error) {
			p := rep.Peaks[i]
			return []any{rep.TrialID, i, p.Index, p.Elapsed, p.Value}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy peaks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *TrialStore) LoadReport(ctx context.Context, id string) (*analysis.Report, error) {
	rep := &analysis.Report{TrialID: id}
	var stddev, peakMean *float64
	var degraded *int
	err := s.pool.QueryRow(ctx, `
		SELECT peak_interval, min_height, max_force, min_force, avg_force,
		       stddev_force, avg_peak, degraded_count
		FROM trial_reports WHERE trial_id = $1
	`, id).Scan(
		&rep.Options.PeakInterval,
		&rep.Options.MinHeight,
		&rep.Stats.Max,
		&rep.Stats.Min,
		&rep.Stats.Mean,
		&stddev,
		&peakMean,
		&degraded,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	rep.Stats.StdDev = measure(stddev)
	rep.Stats.PeakMean = measure(peakMean)
	if degraded != nil {
		rep.Degraded = &analysis.InsufficientDataError{TrialID: id, Count: *degraded}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT sample_index, elapsed, value FROM trial_peaks WHERE trial_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query peaks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p analysis.Peak
		if err := rows.Scan(&p.Index, &p.Elapsed, &p.Value); err != nil {
			return nil, fmt.Errorf("scan peak: %w", err)
		}
		rep.Peaks = append(rep.Peaks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peaks: %w", err)
	}
	return rep, nil
}

func nullable(m analysis.Measure) *float64 {
	if !m.Valid {
		return nil
	}
	v := m.Value
	return &v
}

func measure(v *float64) analysis.Measure {
	if v == nil {
		return analysis.Measure{}
	}
	return analysis.Defined(*v)
}
