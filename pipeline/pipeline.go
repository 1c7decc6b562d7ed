package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	records "github.com/medvertical/records"
)

// Pipeline executes the registered aspects against a resource. Aspects
// are grouped by priority; groups run in ascending priority order, and
// within a group aspects marked Parallel run concurrently.
type Pipeline struct {
	registry *Registry
	groups   []*group
	metrics  *records.Metrics
	options  *Options
	mu       sync.RWMutex
}

// Options configures pipeline behavior.
type Options struct {
	// ParallelExecution enables concurrent aspects within a group.
	ParallelExecution bool

	// AspectTimeout bounds a single aspect, 0 for none.
	AspectTimeout time.Duration

	// FailFast stops after the first group that produced errors.
	FailFast bool
}

// DefaultOptions returns the default pipeline configuration.
func DefaultOptions() *Options {
	return &Options{ParallelExecution: true}
}

// group is one priority band of aspects.
type group struct {
	priority Priority
	aspects  []*AspectConfig
	parallel bool
}

// New creates a Pipeline.
func New(opts *Options) *Pipeline {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Pipeline{
		registry: NewRegistry(),
		metrics:  records.NewMetrics(),
		options:  opts,
	}
}

// RegistrationOption configures an aspect registration.
type RegistrationOption func(*AspectConfig)

// WithPriority sets the execution priority.
func WithPriority(priority Priority) RegistrationOption {
	return func(c *AspectConfig) { c.Priority = priority }
}

// WithParallel controls whether the aspect may share its group's
// goroutines.
func WithParallel(parallel bool) RegistrationOption {
	return func(c *AspectConfig) { c.Parallel = parallel }
}

// Register adds an aspect to the pipeline.
func (p *Pipeline) Register(aspect Aspect, opts ...RegistrationOption) {
	config := &AspectConfig{
		Aspect:   aspect,
		Priority: PriorityNormal,
		Parallel: true,
		Enabled:  true,
	}
	for _, opt := range opts {
		opt(config)
	}

	p.mu.Lock()
	p.registry.Register(aspect.Name(), config)
	p.mu.Unlock()
	p.rebuildGroups()
}

// Enable turns an aspect on.
func (p *Pipeline) Enable(name records.Aspect) {
	p.mu.Lock()
	p.registry.Enable(name)
	p.mu.Unlock()
	p.rebuildGroups()
}

// Disable turns an aspect off.
func (p *Pipeline) Disable(name records.Aspect) {
	p.mu.Lock()
	p.registry.Disable(name)
	p.mu.Unlock()
	p.rebuildGroups()
}

// rebuildGroups reorganizes enabled aspects into priority bands.
func (p *Pipeline) rebuildGroups() {
	p.mu.Lock()
	defer p.mu.Unlock()

	enabled := p.registry.Enabled()
	if len(enabled) == 0 {
		p.groups = nil
		return
	}

	byPriority := make(map[Priority][]*AspectConfig)
	for _, cfg := range enabled {
		byPriority[cfg.Priority] = append(byPriority[cfg.Priority], cfg)
	}

	priorities := make([]Priority, 0, len(byPriority))
	for priority := range byPriority {
		priorities = append(priorities, priority)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[i] < priorities[j] })

	p.groups = make([]*group, 0, len(priorities))
	for _, priority := range priorities {
		aspects := byPriority[priority]
		sort.Slice(aspects, func(i, j int) bool {
			return aspects[i].Aspect.Name() < aspects[j].Aspect.Name()
		})

		canParallel := p.options.ParallelExecution
		for _, cfg := range aspects {
			if !cfg.Parallel {
				canParallel = false
				break
			}
		}
		p.groups = append(p.groups, &group{
			priority: priority,
			aspects:  aspects,
			parallel: canParallel,
		})
	}
}

// Execute runs every enabled aspect the context's options allow and
// returns the accumulated result. The result is not finalized; the
// caller scores it once all sources of issues are in.
func (p *Pipeline) Execute(ctx context.Context, vctx *Context) *records.Result {
	start := time.Now()
	if vctx.Result == nil {
		vctx.Result = records.NewResult()
	}

	p.mu.RLock()
	groups := p.groups
	p.mu.RUnlock()

	for _, g := range groups {
		select {
		case <-ctx.Done():
			vctx.Result.AddIssue(records.Warning(records.IssueTypeTimeout).
				Diagnostics("Validation cancelled: " + ctx.Err().Error()).
				Build())
			return vctx.Result
		default:
		}

		if p.options.FailFast && vctx.Result.ErrorCount() > 0 {
			break
		}

		p.executeGroup(ctx, vctx, g)
	}

	p.metrics.RecordValidation(time.Since(start), !vctx.Result.HasErrors())
	return vctx.Result
}

func (p *Pipeline) executeGroup(ctx context.Context, vctx *Context, g *group) {
	runnable := make([]*AspectConfig, 0, len(g.aspects))
	for _, cfg := range g.aspects {
		if vctx.AspectEnabled(cfg.Aspect.Name()) {
			runnable = append(runnable, cfg)
		}
	}
	if len(runnable) == 0 {
		return
	}

	if g.parallel && len(runnable) > 1 {
		var wg sync.WaitGroup
		for _, cfg := range runnable {
			wg.Add(1)
			go func(cfg *AspectConfig) {
				defer wg.Done()
				p.executeAspect(ctx, vctx, cfg)
			}(cfg)
		}
		wg.Wait()
		return
	}

	for _, cfg := range runnable {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.executeAspect(ctx, vctx, cfg)
	}
}

// executeAspect runs one aspect with timing, timeout, and panic
// containment. A panicking aspect contributes a processing error
// instead of taking the validation down.
func (p *Pipeline) executeAspect(ctx context.Context, vctx *Context, cfg *AspectConfig) {
	aspectCtx := ctx
	if p.options.AspectTimeout > 0 {
		var cancel context.CancelFunc
		aspectCtx, cancel = context.WithTimeout(ctx, p.options.AspectTimeout)
		defer cancel()
	}

	name := cfg.Aspect.Name()
	start := time.Now()
	issues := p.runSafely(aspectCtx, vctx, cfg, name)
	duration := time.Since(start)

	for i := range issues {
		if issues[i].Aspect == "" {
			issues[i].Aspect = name
		}
	}

	vctx.Result.AddIssues(issues)
	vctx.Result.RecordTiming(name, duration)
	p.metrics.RecordAspect(name, duration, len(issues))
}

func (p *Pipeline) runSafely(ctx context.Context, vctx *Context, cfg *AspectConfig, name records.Aspect) (issues []records.Issue) {
	defer func() {
		if r := recover(); r != nil {
			issues = append(issues, records.Error(records.IssueTypeProcessing).
				Diagnostics(fmt.Sprintf("%s validation panicked: %v", name, r)).
				Aspect(name).
				Build())
		}
	}()
	return cfg.Aspect.Validate(ctx, vctx)
}

// Metrics returns the pipeline's metrics collector.
func (p *Pipeline) Metrics() *records.Metrics { return p.metrics }

// SetMetrics shares a metrics collector with the pipeline, typically
// the engine's.
func (p *Pipeline) SetMetrics(m *records.Metrics) {
	if m != nil {
		p.metrics = m
	}
}

// Registry exposes the aspect registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// AspectCount returns the number of enabled aspects.
func (p *Pipeline) AspectCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.registry.Enabled())
}

// GroupCount returns the number of priority bands.
func (p *Pipeline) GroupCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.groups)
}
