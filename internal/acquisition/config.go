package acquisition

import "forcetrial/internal/trial"

// Bench defaults.
const (
	DefaultStabilizationCount = 50
	DefaultWindowLength       = 40
	DefaultSampleStride       = 1
)

// Config is fixed for the duration of one run.
type Config struct {
	Invert             bool `json:"invert"`
	StabilizationCount int  `json:"stabilization_count"`
	WindowLength       int  `json:"window_length"`
	SampleStride       int  `json:"sample_stride"`
}

func DefaultConfig() Config {
	return Config{
		StabilizationCount: DefaultStabilizationCount,
		WindowLength:       DefaultWindowLength,
		SampleStride:       DefaultSampleStride,
	}
}

// Validate returns a *trial.ConfigError naming the first bad field.
func (c Config) Validate() error {
	if c.StabilizationCount < 0 {
		return &trial.ConfigError{Field: "stabilization_count", Reason: "must be >= 0"}
	}
	if c.WindowLength < 1 {
		return &trial.ConfigError{Field: "window_length", Reason: "must be >= 1"}
	}
	if c.SampleStride < 1 {
		return &trial.ConfigError{Field: "sample_stride", Reason: "must be >= 1"}
	}
	return nil
}

func (c Config) sign() float64 {
	if c.Invert {
		return -1
	}
	return 1
}
