package logger

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level (debug, info, warn, error, fatal).
	Level string `yaml:"level"`
	// Format is the output encoding: "json" or "console".
	Format string `yaml:"format"`
	// Development enables development mode (no sampling, console-friendly timestamps).
	Development bool `yaml:"development"`
	// OutputPaths is a list of URLs or file paths to write logging output to.
	OutputPaths []string `yaml:"output_paths"`
}

// Default configuration values.
const (
	// DefaultLevel is the default logging level.
	DefaultLevel = "info"
	// DefaultFormat is the default log format.
	DefaultFormat = "json"
)

// DefaultOutputPaths is the default list of paths to write log output to.
// Logs go to stderr so that the stdout sink carries only JSON records.
var DefaultOutputPaths = []string{"stderr"}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = DefaultOutputPaths
	}
}
