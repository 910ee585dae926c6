package forcetrial

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"

	"forcetrial/internal/analysis"
	"forcetrial/internal/store"
)

var Analyzer = resource.NewModel("viamdemo", "force-trial", "trial-analyzer")

func init() {
	resource.RegisterService(generic.API, Analyzer,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newTrialAnalyzer,
		},
	)
}

type Config struct {
	DataDir     string `json:"data_dir,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`
	Artifacts   bool   `json:"artifacts,omitempty"`

	PeakInterval  int      `json:"peak_interval,omitempty"`   // default: 10
	MinPeakHeight *float64 `json:"min_peak_height,omitempty"` // default: 1.0
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if err := cfg.storage().validate(path); err != nil {
		return nil, nil, err
	}
	if err := cfg.analysisOptions().Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return nil, nil, nil
}

func (cfg *Config) storage() StorageConfig {
	return StorageConfig{DataDir: cfg.DataDir, PostgresDSN: cfg.PostgresDSN, Artifacts: cfg.Artifacts}
}

func (cfg *Config) analysisOptions() analysis.Options {
	opts := analysis.DefaultOptions()
	if cfg.PeakInterval != 0 {
		opts.PeakInterval = cfg.PeakInterval
	}
	if cfg.MinPeakHeight != nil {
		opts.MinHeight = *cfg.MinPeakHeight
	}
	return opts
}

type trialAnalyzer struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	opts   analysis.Options

	trials     store.Store
	closeStore func()

	mu   sync.Mutex
	last *analysis.Report
}

func newTrialAnalyzer(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	trials, closeStore, err := OpenStore(ctx, conf.storage(), logger)
	if err != nil {
		return nil, err
	}
	return NewAnalyzer(rawConf.ResourceName(), conf.analysisOptions(), trials, closeStore, logger), nil
}

// NewAnalyzer builds a trial-analyzer over an already opened store. release
// is called on Close and may be nil.
func NewAnalyzer(name resource.Name, opts analysis.Options, trials store.Store, release func(), logger logging.Logger) resource.Resource {
	if release == nil {
		release = func() {}
	}
	return &trialAnalyzer{
		name:       name,
		logger:     logger,
		opts:       opts,
		trials:     trials,
		closeStore: release,
	}
}

func (s *trialAnalyzer) Name() resource.Name {
	return s.name
}

func (s *trialAnalyzer) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "analyze":
		return s.handleAnalyze(ctx, cmd)
	case "discard":
		return s.handleDiscard(ctx, cmd)
	case "report":
		return s.handleReport(ctx, cmd)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

func trialIDArg(cmd map[string]interface{}) (string, error) {
	id, _ := cmd["trial_id"].(string)
	if err := store.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// numberArg reads an optional numeric argument. JSON numbers arrive as
// float64; in-process callers may pass ints.
func numberArg(cmd map[string]interface{}, key string) (float64, bool, error) {
	raw, ok := cmd[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
}

func (s *trialAnalyzer) handleAnalyze(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	trialID, err := trialIDArg(cmd)
	if err != nil {
		return nil, err
	}

	opts := s.opts
	if v, ok, err := numberArg(cmd, "peak_interval"); err != nil {
		return nil, err
	} else if ok {
		opts.PeakInterval = int(v)
	}
	if v, ok, err := numberArg(cmd, "min_peak_height"); err != nil {
		return nil, err
	} else if ok {
		opts.MinHeight = v
	}

	snap, err := s.trials.LoadTrial(ctx, trialID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("trial %q not found", trialID)
	}
	if err != nil {
		return nil, err
	}

	rep, err := analysis.Analyze(snap, opts)
	if err != nil {
		// No report is written when the analysis is aborted.
		s.logger.Warnf("analysis of trial %q aborted: %v", trialID, err)
		return nil, err
	}
	if rep.Degraded != nil {
		s.logger.Warnf("trial %q: %v", trialID, rep.Degraded)
	}

	if err := s.trials.SaveReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("saving report for %q: %w", trialID, err)
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	s.logger.Infof("trial %q: %d peaks, avg peak force %s", trialID, len(rep.Peaks), rep.Stats.PeakMean)
	return reportMap(rep), nil
}

func (s *trialAnalyzer) handleDiscard(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	trialID, err := trialIDArg(cmd)
	if err != nil {
		return nil, err
	}

	deleted, err := s.trials.DeleteTrial(ctx, trialID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.last != nil && s.last.TrialID == trialID {
		s.last = nil
	}
	s.mu.Unlock()

	if !deleted {
		s.logger.Infof("nothing to discard for trial %q", trialID)
		return map[string]interface{}{"status": "nothing_to_discard", "trial_id": trialID}, nil
	}
	s.logger.Infof("discarded trial %q", trialID)
	return map[string]interface{}{"status": "discarded", "trial_id": trialID}, nil
}

func (s *trialAnalyzer) handleReport(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	trialID, err := trialIDArg(cmd)
	if err != nil {
		return nil, err
	}
	rep, err := s.StoredReport(ctx, trialID)
	if err != nil {
		return nil, err
	}
	return reportMap(rep), nil
}

// LatestReport returns the report most recently produced by this analyzer,
// or nil if there is none or it was discarded.
func (s *trialAnalyzer) LatestReport() *analysis.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// StoredReport loads the persisted report for trialID.
func (s *trialAnalyzer) StoredReport(ctx context.Context, trialID string) (*analysis.Report, error) {
	if err := store.ValidateID(trialID); err != nil {
		return nil, err
	}
	rep, err := s.trials.LoadReport(ctx, trialID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no report for trial %q: %w", trialID, err)
	}
	return rep, err
}

// reportMap flattens rep into values a sensor reading can carry. Undefined
// measures are reported as nil.
func reportMap(rep *analysis.Report) map[string]interface{} {
	times := make([]interface{}, len(rep.Peaks))
	values := make([]interface{}, len(rep.Peaks))
	for i, p := range rep.Peaks {
		times[i] = p.Elapsed
		values[i] = p.Value
	}
	return map[string]interface{}{
		"status":          "analyzed",
		"trial_id":        rep.TrialID,
		"max_force":       rep.Stats.Max,
		"min_force":       rep.Stats.Min,
		"avg_force":       rep.Stats.Mean,
		"std_dev_force":   measureValue(rep.Stats.StdDev),
		"avg_peak_force":  measureValue(rep.Stats.PeakMean),
		"peak_count":      len(rep.Peaks),
		"peak_times":      times,
		"peak_values":     values,
		"peak_interval":   rep.Options.PeakInterval,
		"min_peak_height": rep.Options.MinHeight,
		"degraded":        rep.Degraded != nil,
	}
}

func measureValue(m analysis.Measure) interface{} {
	if !m.Valid {
		return nil
	}
	return m.Value
}

func (s *trialAnalyzer) Close(context.Context) error {
	s.closeStore()
	return nil
}
