package pipeline

import (
	"context"

	records "github.com/medvertical/records"
)

// Aspect is one dimension of validation. Implementations must be
// stateless and safe for concurrent use; all per-resource state lives
// in the Context.
type Aspect interface {
	// Name identifies the aspect; issues it returns are tagged with it.
	Name() records.Aspect

	// Validate inspects the resource in vctx and returns the issues it
	// found. ctx carries cancellation and the per-aspect deadline.
	Validate(ctx context.Context, vctx *Context) []records.Issue
}

// AspectFunc adapts a function to the Aspect interface.
type AspectFunc struct {
	name records.Aspect
	fn   func(ctx context.Context, vctx *Context) []records.Issue
}

// NewAspectFunc wraps fn as an Aspect.
func NewAspectFunc(name records.Aspect, fn func(ctx context.Context, vctx *Context) []records.Issue) Aspect {
	return &AspectFunc{name: name, fn: fn}
}

func (a *AspectFunc) Name() records.Aspect { return a.name }

func (a *AspectFunc) Validate(ctx context.Context, vctx *Context) []records.Issue {
	return a.fn(ctx, vctx)
}

// Priority orders aspect execution. Lower values run first.
type Priority int

const (
	// PriorityFirst is for aspects later aspects depend on, such as
	// structural validation.
	PriorityFirst Priority = 100

	// PriorityNormal is the default.
	PriorityNormal Priority = 500

	// PriorityLate is for aspects that read what earlier aspects left
	// in the context.
	PriorityLate Priority = 800
)

// AspectConfig is one registered aspect plus its scheduling knobs.
type AspectConfig struct {
	Aspect   Aspect
	Priority Priority

	// Parallel allows the aspect to run alongside others of the same
	// priority.
	Parallel bool

	// Enabled gates execution. Disabled aspects stay registered so
	// they can be toggled per validation run.
	Enabled bool
}

// Registry holds the configured aspects.
type Registry struct {
	aspects map[records.Aspect]*AspectConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{aspects: make(map[records.Aspect]*AspectConfig)}
}

// Register adds or replaces an aspect configuration.
func (r *Registry) Register(name records.Aspect, config *AspectConfig) {
	r.aspects[name] = config
}

// Get returns the configuration for an aspect.
func (r *Registry) Get(name records.Aspect) (*AspectConfig, bool) {
	cfg, ok := r.aspects[name]
	return cfg, ok
}

// Enabled returns the enabled aspect configurations.
func (r *Registry) Enabled() []*AspectConfig {
	var enabled []*AspectConfig
	for _, cfg := range r.aspects {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled
}

// Enable turns an aspect on.
func (r *Registry) Enable(name records.Aspect) {
	if cfg, ok := r.aspects[name]; ok {
		cfg.Enabled = true
	}
}

// Disable turns an aspect off.
func (r *Registry) Disable(name records.Aspect) {
	if cfg, ok := r.aspects[name]; ok {
		cfg.Enabled = false
	}
}

// Names returns the registered aspect names.
func (r *Registry) Names() []records.Aspect {
	names := make([]records.Aspect, 0, len(r.aspects))
	for name := range r.aspects {
		names = append(names, name)
	}
	return names
}

// ConditionalAspect wraps an aspect with a run condition.
type ConditionalAspect struct {
	aspect    Aspect
	condition func(*Context) bool
}

// NewConditionalAspect returns an aspect that only runs when the
// condition holds for the resource under validation.
func NewConditionalAspect(aspect Aspect, condition func(*Context) bool) Aspect {
	return &ConditionalAspect{aspect: aspect, condition: condition}
}

func (a *ConditionalAspect) Name() records.Aspect { return a.aspect.Name() }

func (a *ConditionalAspect) Validate(ctx context.Context, vctx *Context) []records.Issue {
	if a.condition != nil && !a.condition(vctx) {
		return nil
	}
	return a.aspect.Validate(ctx, vctx)
}
