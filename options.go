package records

import (
	"runtime"
	"time"
)

// Option configures the validation engine.
type Option func(*Options)

// Options holds all configuration for the validation engine.
type Options struct {
	// Aspect enable flags
	EnabledAspects map[Aspect]bool

	// Performance
	ParallelAspects          bool
	MaxConcurrentValidations int
	WorkerCount              int
	AspectTimeout            time.Duration

	// Reference checking
	ReferenceBaseURL  string
	ProbeTimeout      time.Duration
	ProbeConcurrency  int
	ReferenceCacheTTL time.Duration
	MaxReferenceDepth int

	// Parsing
	StrictResourceTypes bool

	// Retry policy for queued validations
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	enabled := make(map[Aspect]bool, len(Aspects))
	for _, a := range Aspects {
		enabled[a] = true
	}

	return &Options{
		EnabledAspects: enabled,

		ParallelAspects:          true,
		MaxConcurrentValidations: 8,
		WorkerCount:              runtime.NumCPU(),
		AspectTimeout:            0, // no timeout

		ProbeTimeout:      3 * time.Second,
		ProbeConcurrency:  10,
		ReferenceCacheTTL: 15 * time.Minute,
		MaxReferenceDepth: 10,

		StrictResourceTypes: true,

		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Clone returns a deep copy of the options.
func (o *Options) Clone() *Options {
	clone := *o
	clone.EnabledAspects = make(map[Aspect]bool, len(o.EnabledAspects))
	for k, v := range o.EnabledAspects {
		clone.EnabledAspects[k] = v
	}
	return &clone
}

// AspectEnabled reports whether an aspect is enabled.
func (o *Options) AspectEnabled(aspect Aspect) bool {
	return o.EnabledAspects[aspect]
}

// AllAspectsDisabled reports whether every aspect is disabled.
func (o *Options) AllAspectsDisabled() bool {
	for _, a := range Aspects {
		if o.EnabledAspects[a] {
			return false
		}
	}
	return true
}

// --- Aspect Options ---

// WithAspect enables or disables a single validation aspect.
func WithAspect(aspect Aspect, enable bool) Option {
	return func(o *Options) {
		o.EnabledAspects[aspect] = enable
	}
}

// WithAspects sets the full aspect enable map.
func WithAspects(enabled map[Aspect]bool) Option {
	return func(o *Options) {
		for _, a := range Aspects {
			o.EnabledAspects[a] = enabled[a]
		}
	}
}

// --- Performance Options ---

// WithParallelAspects enables parallel execution of independent aspects.
func WithParallelAspects(enable bool) Option {
	return func(o *Options) {
		o.ParallelAspects = enable
	}
}

// WithMaxConcurrentValidations caps simultaneously in-flight validations.
// Exceeding the cap fails fast; queuing is the queue's job.
func WithMaxConcurrentValidations(max int) Option {
	return func(o *Options) {
		if max > 0 {
			o.MaxConcurrentValidations = max
		}
	}
}

// WithWorkerCount sets the number of workers for batch validation.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithAspectTimeout sets a timeout for each validation aspect.
// Use 0 for no timeout.
func WithAspectTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.AspectTimeout = timeout
	}
}

// --- Reference Options ---

// WithReferenceBaseURL sets the FHIR base URL relative references are
// probed against. Empty disables existence probing.
func WithReferenceBaseURL(url string) Option {
	return func(o *Options) {
		o.ReferenceBaseURL = url
	}
}

// WithProbeTimeout sets the timeout for a single existence probe.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.ProbeTimeout = timeout
		}
	}
}

// WithProbeConcurrency sets the number of concurrent existence probes.
func WithProbeConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ProbeConcurrency = n
		}
	}
}

// WithReferenceCacheTTL sets how long existence results are cached.
func WithReferenceCacheTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.ReferenceCacheTTL = ttl
		}
	}
}

// WithMaxReferenceDepth sets the depth limit for cycle detection.
func WithMaxReferenceDepth(depth int) Option {
	return func(o *Options) {
		if depth > 0 {
			o.MaxReferenceDepth = depth
		}
	}
}

// --- Parsing Options ---

// WithStrictResourceTypes validates parsed resource types against the
// known FHIR resource type set. When disabled, any UpperCamel token is
// accepted as a type.
func WithStrictResourceTypes(strict bool) Option {
	return func(o *Options) {
		o.StrictResourceTypes = strict
	}
}

// --- Retry Options ---

// WithRetry sets the retry policy for queued validations.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Options) {
		if attempts > 0 {
			o.RetryAttempts = attempts
		}
		if delay > 0 {
			o.RetryDelay = delay
		}
	}
}

// --- Presets ---

// OfflineOptions returns options suitable for running without network
// dependencies: terminology and reference probing are disabled.
func OfflineOptions() []Option {
	return []Option{
		WithAspect(AspectTerminology, false),
		WithReferenceBaseURL(""),
	}
}
