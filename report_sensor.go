package forcetrial

import (
	"context"
	"fmt"
	"sync"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/data"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"

	"forcetrial/internal/analysis"
)

var ReportSensor = resource.NewModel("viamdemo", "force-trial", "report-sensor")

func init() {
	resource.RegisterComponent(sensor.API, ReportSensor,
		resource.Registration[sensor.Sensor, *ReportSensorConfig]{
			Constructor: newReportSensor,
		},
	)
}

type ReportSensorConfig struct {
	Analyzer     string `json:"analyzer"`
	IncludePeaks bool   `json:"include_peaks,omitempty"` // add peak_times/peak_values lists
}

func (cfg *ReportSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Analyzer == "" {
		return nil, nil, fmt.Errorf("%s: analyzer is required", path)
	}
	return []string{resource.NewName(generic.API, cfg.Analyzer).String()}, nil, nil
}

// reportProvider is the part of the trial-analyzer the report sensor reads.
type reportProvider interface {
	LatestReport() *analysis.Report
	StoredReport(ctx context.Context, trialID string) (*analysis.Report, error)
}

// reportSensor turns trial reports into sensor readings. Data management
// captures each new report once; other callers always get the latest one,
// or a stored one when extra carries a trial_id.
type reportSensor struct {
	resource.AlwaysRebuild

	name         resource.Name
	logger       logging.Logger
	reports      reportProvider
	includePeaks bool

	mu       sync.Mutex
	captured *analysis.Report
}

func newReportSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*ReportSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	res, err := deps.Lookup(resource.NewName(generic.API, conf.Analyzer))
	if err != nil {
		return nil, fmt.Errorf("report-sensor needs trial-analyzer %q: %w", conf.Analyzer, err)
	}
	reports, ok := res.(reportProvider)
	if !ok {
		return nil, fmt.Errorf("%q is not a trial-analyzer", conf.Analyzer)
	}

	return &reportSensor{
		name:         rawConf.ResourceName(),
		logger:       logger,
		reports:      reports,
		includePeaks: conf.IncludePeaks,
	}, nil
}

func (s *reportSensor) Name() resource.Name {
	return s.name
}

func (s *reportSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	if id, _ := extra["trial_id"].(string); id != "" {
		rep, err := s.reports.StoredReport(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.readings(rep), nil
	}

	rep := s.reports.LatestReport()
	if fromDM, _ := extra[data.FromDMString].(bool); fromDM {
		s.mu.Lock()
		defer s.mu.Unlock()
		if rep == nil || rep == s.captured {
			return nil, data.ErrNoCaptureToStore
		}
		s.captured = rep
		s.logger.Debugf("capturing report for trial %q", rep.TrialID)
	}
	if rep == nil {
		return map[string]interface{}{"status": "no_report"}, nil
	}
	return s.readings(rep), nil
}

func (s *reportSensor) readings(rep *analysis.Report) map[string]interface{} {
	r := reportMap(rep)
	if !s.includePeaks {
		delete(r, "peak_times")
		delete(r, "peak_values")
	}
	return r
}

func (s *reportSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on report-sensor")
}

func (s *reportSensor) Close(context.Context) error {
	return nil
}
