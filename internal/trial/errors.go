package trial

import "fmt"

// ConfigError reports an out-of-range run or analysis parameter. It is
// returned before any I/O is attempted.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}
