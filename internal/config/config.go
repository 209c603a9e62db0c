package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	// EnvOutputPath names the environment variable consulted when no output
	// path is configured.
	EnvOutputPath = "TASK_TREE_DOTFILE"
	// DefaultOutputPath is used when neither configuration nor environment set a path.
	DefaultOutputPath = "./tree.dot"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds everything needed to run the tracker.
type Config struct {
	OutputPath string
	Format     string

	ExtendedAncestry   bool
	VerboseDiagnostics bool

	LogLevel  string
	LogFormat string

	IngestAddress   string
	IngestPath      string
	HealthcheckPort int
	Workers         int
}

// Default returns a Config with both runtime options off.
func Default() Config {
	return Config{
		LogLevel:      "info",
		LogFormat:     "text",
		IngestAddress: ":4000",
		IngestPath:    "/socket.io/",
		Workers:       4,
	}
}

// Overrides holds explicitly set values. A nil field leaves the target
// unchanged, so a set false or zero still overrides.
type Overrides struct {
	OutputPath *string
	Format     *string

	ExtendedAncestry   *bool
	VerboseDiagnostics *bool

	LogLevel  *string
	LogFormat *string

	IngestAddress   *string
	IngestPath      *string
	HealthcheckPort *int
	Workers         *int
}

// Merge copies every set field of src into o.
func (o *Overrides) Merge(src *Overrides) {
	mergeField(&o.OutputPath, src.OutputPath)
	mergeField(&o.Format, src.Format)
	mergeField(&o.ExtendedAncestry, src.ExtendedAncestry)
	mergeField(&o.VerboseDiagnostics, src.VerboseDiagnostics)
	mergeField(&o.LogLevel, src.LogLevel)
	mergeField(&o.LogFormat, src.LogFormat)
	mergeField(&o.IngestAddress, src.IngestAddress)
	mergeField(&o.IngestPath, src.IngestPath)
	mergeField(&o.HealthcheckPort, src.HealthcheckPort)
	mergeField(&o.Workers, src.Workers)
}

// Apply sets every field of c that o sets.
func (c *Config) Apply(o *Overrides) {
	applyField(&c.OutputPath, o.OutputPath)
	applyField(&c.Format, o.Format)
	applyField(&c.ExtendedAncestry, o.ExtendedAncestry)
	applyField(&c.VerboseDiagnostics, o.VerboseDiagnostics)
	applyField(&c.LogLevel, o.LogLevel)
	applyField(&c.LogFormat, o.LogFormat)
	applyField(&c.IngestAddress, o.IngestAddress)
	applyField(&c.IngestPath, o.IngestPath)
	applyField(&c.HealthcheckPort, o.HealthcheckPort)
	applyField(&c.Workers, o.Workers)
}

func mergeField[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func applyField[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Validate normalizes enumerated values to lower case and rejects unknown ones.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level must be 'debug', 'info', 'warn', or 'error', got %q", ErrInvalid, c.LogLevel)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log format must be 'text' or 'json', got %q", ErrInvalid, c.LogFormat)
	}

	c.Format = strings.ToLower(c.Format)
	switch c.Format {
	case "", "dot", "msgpack":
	default:
		return fmt.Errorf("%w: format must be 'dot' or 'msgpack', got %q", ErrInvalid, c.Format)
	}

	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.HealthcheckPort < 0 {
		return fmt.Errorf("%w: healthcheck port must not be negative", ErrInvalid)
	}
	return nil
}

// ResolveOutputPath returns explicit if set, else the value of
// TASK_TREE_DOTFILE, else DefaultOutputPath.
func ResolveOutputPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := os.LookupEnv(EnvOutputPath); ok && v != "" {
		return v
	}
	return DefaultOutputPath
}
