package forcetrial

import (
	"context"
	"fmt"

	"go.viam.com/rdk/logging"

	"forcetrial/internal/store"
	"forcetrial/internal/store/postgres"
)

// StorageConfig selects where trials and reports are kept. Exactly one of
// DataDir and PostgresDSN must be set; resources that share a trial set must
// point at the same storage.
type StorageConfig struct {
	DataDir     string
	PostgresDSN string
	// Artifacts enables the PNG plot and PDF summary next to file reports.
	Artifacts bool
}

func (c StorageConfig) validate(path string) error {
	switch {
	case c.DataDir == "" && c.PostgresDSN == "":
		return fmt.Errorf("%s: one of data_dir or postgres_dsn is required", path)
	case c.DataDir != "" && c.PostgresDSN != "":
		return fmt.Errorf("%s: data_dir and postgres_dsn are mutually exclusive", path)
	}
	return nil
}

// OpenStore returns the configured store and a function releasing it.
func OpenStore(ctx context.Context, c StorageConfig, logger logging.Logger) (store.Store, func(), error) {
	if c.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Infof("storing trials in postgres")
		return postgres.NewTrialStore(pool), pool.Close, nil
	}

	fs, err := store.NewFileStore(c.DataDir, c.Artifacts, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("storing trials in %s", c.DataDir)
	return fs, func() {}, nil
}
