// Package settings holds the YAML-backed runtime configuration and
// maps it onto validation options.
package settings

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	records "github.com/medvertical/records"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML parses a duration string or a bare number of
// nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var ns int64
		if err := value.Decode(&ns); err != nil {
			return fmt.Errorf("settings: invalid duration value")
		}
		*d = Duration(ns)
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("settings: invalid duration value")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("settings: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// AspectSettings configures one validation aspect.
type AspectSettings struct {
	// Enabled switches the aspect on or off.
	Enabled bool `yaml:"enabled"`
}

// RetrySettings configures how queued validations retry.
type RetrySettings struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
	Backoff  float64  `yaml:"backoff"`
}

// Settings is the full runtime configuration.
type Settings struct {
	// Aspects keys the per-aspect configuration by aspect name.
	Aspects map[string]AspectSettings `yaml:"aspects"`

	// FHIRServerURL is the base URL relative references are checked
	// against. Empty disables existence probing.
	FHIRServerURL string `yaml:"fhirServer"`

	// TerminologyServers lists terminology endpoints in preference
	// order.
	TerminologyServers []string `yaml:"terminologyServers"`

	// ProfileServers lists profile resolution endpoints.
	ProfileServers []string `yaml:"profileServers"`

	// PackageRegistries lists FHIR package registries to monitor.
	PackageRegistries []string `yaml:"packageRegistries"`

	ParallelAspects          bool     `yaml:"parallelAspects"`
	MaxConcurrentValidations int      `yaml:"maxConcurrentValidations"`
	WorkerCount              int      `yaml:"workerCount"`
	AspectTimeout            Duration `yaml:"aspectTimeout"`

	ProbeTimeout      Duration `yaml:"probeTimeout"`
	ProbeConcurrency  int      `yaml:"probeConcurrency"`
	ReferenceCacheTTL Duration `yaml:"referenceCacheTTL"`
	MaxReferenceDepth int      `yaml:"maxReferenceDepth"`

	StrictResourceTypes bool `yaml:"strictResourceTypes"`

	Retry RetrySettings `yaml:"retry"`

	HealthCheckInterval Duration `yaml:"healthCheckInterval"`
	FailureThreshold    int      `yaml:"failureThreshold"`
}

// Default returns settings matching the engine's default options.
func Default() Settings {
	opts := records.DefaultOptions()

	aspects := make(map[string]AspectSettings, len(records.Aspects))
	for _, a := range records.Aspects {
		aspects[string(a)] = AspectSettings{Enabled: true}
	}

	return Settings{
		Aspects:                  aspects,
		ParallelAspects:          opts.ParallelAspects,
		MaxConcurrentValidations: opts.MaxConcurrentValidations,
		WorkerCount:              opts.WorkerCount,
		AspectTimeout:            Duration(opts.AspectTimeout),
		ProbeTimeout:             Duration(opts.ProbeTimeout),
		ProbeConcurrency:         opts.ProbeConcurrency,
		ReferenceCacheTTL:        Duration(opts.ReferenceCacheTTL),
		MaxReferenceDepth:        opts.MaxReferenceDepth,
		StrictResourceTypes:      opts.StrictResourceTypes,
		Retry: RetrySettings{
			Attempts: opts.RetryAttempts,
			Delay:    Duration(opts.RetryDelay),
			Backoff:  1,
		},
		HealthCheckInterval: Duration(60 * time.Second),
		FailureThreshold:    5,
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and parses a YAML settings file.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return Parse(data)
}

// Validate checks the settings for inconsistencies.
func (s Settings) Validate() error {
	known := make(map[string]bool, len(records.Aspects))
	for _, a := range records.Aspects {
		known[string(a)] = true
	}
	for name := range s.Aspects {
		if !known[name] {
			return fmt.Errorf("settings: unknown aspect %q", name)
		}
	}

	if s.MaxConcurrentValidations < 1 {
		return fmt.Errorf("settings: maxConcurrentValidations must be >= 1")
	}
	if s.WorkerCount < 1 {
		return fmt.Errorf("settings: workerCount must be >= 1")
	}
	if s.ProbeConcurrency < 1 {
		return fmt.Errorf("settings: probeConcurrency must be >= 1")
	}
	if s.MaxReferenceDepth < 1 {
		return fmt.Errorf("settings: maxReferenceDepth must be >= 1")
	}
	if s.Retry.Attempts < 1 {
		return fmt.Errorf("settings: retry.attempts must be >= 1")
	}
	if s.FailureThreshold < 1 {
		return fmt.Errorf("settings: failureThreshold must be >= 1")
	}
	return nil
}

// AspectEnabled reports whether an aspect is enabled. Aspects absent
// from the map are disabled.
func (s Settings) AspectEnabled(aspect records.Aspect) bool {
	return s.Aspects[string(aspect)].Enabled
}

// Options converts the settings into engine options.
func (s Settings) Options() []records.Option {
	enabled := make(map[records.Aspect]bool, len(records.Aspects))
	for _, a := range records.Aspects {
		enabled[a] = s.AspectEnabled(a)
	}

	opts := []records.Option{
		records.WithAspects(enabled),
		records.WithParallelAspects(s.ParallelAspects),
		records.WithMaxConcurrentValidations(s.MaxConcurrentValidations),
		records.WithWorkerCount(s.WorkerCount),
		records.WithAspectTimeout(time.Duration(s.AspectTimeout)),
		records.WithProbeTimeout(time.Duration(s.ProbeTimeout)),
		records.WithProbeConcurrency(s.ProbeConcurrency),
		records.WithReferenceCacheTTL(time.Duration(s.ReferenceCacheTTL)),
		records.WithMaxReferenceDepth(s.MaxReferenceDepth),
		records.WithStrictResourceTypes(s.StrictResourceTypes),
		records.WithRetry(s.Retry.Attempts, time.Duration(s.Retry.Delay)),
	}
	if s.FHIRServerURL != "" {
		opts = append(opts, records.WithReferenceBaseURL(s.FHIRServerURL))
	}
	return opts
}
