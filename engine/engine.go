// Package engine wires the validation aspects into a ready-to-use
// FHIR resource validator.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/aspect"
	"github.com/medvertical/records/event"
	"github.com/medvertical/records/graph"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/refcheck"
	"github.com/medvertical/records/reference"
	"github.com/medvertical/records/service"
)

// ErrTooManyConcurrent is returned when the number of in-flight
// validations has reached Options.MaxConcurrentValidations. Callers
// that want queuing instead of fail-fast should go through the queue.
var ErrTooManyConcurrent = errors.New("engine: too many concurrent validations")

// Deps holds the external services the engine validates against. Every
// field is optional; aspects degrade gracefully when a service is
// absent (profile checks are skipped, codes are not verified, existence
// probes are not sent).
type Deps struct {
	// Profiles resolves StructureDefinitions by canonical URL or type.
	Profiles service.ProfileResolver

	// Terminology validates codes against code systems and value sets.
	Terminology service.TerminologyService

	// Evaluator evaluates FHIRPath constraint expressions.
	Evaluator service.FHIRPathEvaluator

	// Store answers local resource existence queries before any
	// network probe is attempted.
	Store service.ResourceStore

	// Checker probes reference targets over HTTP. When nil and
	// Options.ReferenceBaseURL is set, the engine builds one from the
	// options.
	Checker *refcheck.Checker

	// CanonicalFetcher resolves canonical URLs to their resources.
	CanonicalFetcher reference.CanonicalFetcher

	// TerminologyAvailable gates terminology calls, typically wired to
	// a health detector. Nil means available whenever Terminology is set.
	TerminologyAvailable func() bool

	// ProbingAllowed gates existence probes, typically wired to a
	// health detector. Nil means always allowed.
	ProbingAllowed func() bool

	// Rules are custom business rules evaluated on every resource.
	Rules []aspect.Rule
}

// Engine is the main FHIR resource validator. It coordinates the six
// validation aspects and manages the services they depend on.
type Engine struct {
	version records.FHIRVersion
	options *records.Options
	deps    Deps

	parser *reference.Parser

	// pipeMu guards pipe, which Set* methods swap while validations
	// may be running.
	pipeMu sync.RWMutex
	pipe   *pipeline.Pipeline

	metrics      *records.Metrics
	bus          *event.Bus[Event]
	settingsHash string

	// sem caps concurrently in-flight validations, fail-fast
	sem chan struct{}

	// worker pool for batch validation
	workerPool     chan struct{}
	workerPoolOnce sync.Once
}

// New creates an Engine for the given FHIR version.
func New(version records.FHIRVersion, deps Deps, opts ...records.Option) (*Engine, error) {
	if !version.IsValid() {
		return nil, fmt.Errorf("engine: unsupported FHIR version %q", version)
	}

	options := records.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	e := &Engine{
		version: version,
		options: options,
		deps:    deps,
		metrics: records.NewMetrics(),
		bus:     event.NewBus[Event](),
		sem:     make(chan struct{}, options.MaxConcurrentValidations),
	}
	e.settingsHash = hashSettings(options)

	e.parser = reference.NewParser(reference.ParserOptions{
		StrictTypes: options.StrictResourceTypes,
	})

	if e.deps.Checker == nil && options.ReferenceBaseURL != "" {
		e.deps.Checker = refcheck.NewChecker(
			refcheck.WithBaseURL(options.ReferenceBaseURL),
			refcheck.WithTimeout(options.ProbeTimeout),
			refcheck.WithConcurrency(options.ProbeConcurrency),
			refcheck.WithCacheTTL(options.ReferenceCacheTTL),
		)
	}

	e.buildPipeline()
	return e, nil
}

// buildPipeline constructs the aspect pipeline from the current
// options and services.
func (e *Engine) buildPipeline() {
	e.pipe = pipeline.New(&pipeline.Options{
		ParallelExecution: e.options.ParallelAspects,
		AspectTimeout:     e.options.AspectTimeout,
	})
	e.pipe.SetMetrics(e.metrics)

	// Structural runs alone in the first group so the later aspects
	// see a resource whose shape has already been checked.
	e.pipe.Register(aspect.NewStructural(e.deps.Profiles),
		pipeline.WithPriority(pipeline.PriorityFirst))

	e.pipe.Register(aspect.NewProfile(e.deps.Profiles))

	e.pipe.Register(aspect.NewTerminology(e.deps.Profiles, e.deps.Terminology, e.terminologyGate()))

	refOpts := []aspect.ReferenceOption{
		aspect.WithDetector(graph.NewDetector(graph.WithMaxDepth(e.options.MaxReferenceDepth))),
		aspect.WithProbing(e.probingGate()),
	}
	if e.deps.Checker != nil {
		refOpts = append(refOpts, aspect.WithChecker(e.deps.Checker))
	}
	if e.deps.Store != nil {
		refOpts = append(refOpts, aspect.WithStore(e.deps.Store))
	}
	if e.deps.CanonicalFetcher != nil {
		refOpts = append(refOpts, aspect.WithCanonicalFetcher(e.deps.CanonicalFetcher))
	}
	e.pipe.Register(aspect.NewReference(e.parser, refOpts...))

	e.pipe.Register(aspect.NewBusinessRule(e.deps.Profiles, e.deps.Evaluator, e.deps.Rules...))

	e.pipe.Register(aspect.NewMetadata())
}

func (e *Engine) terminologyGate() func() bool {
	if e.deps.TerminologyAvailable != nil {
		return e.deps.TerminologyAvailable
	}
	available := e.deps.Terminology != nil
	return func() bool { return available }
}

func (e *Engine) probingGate() func() bool {
	if e.deps.ProbingAllowed != nil {
		return e.deps.ProbingAllowed
	}
	return func() bool { return true }
}

// SetProfileService replaces the profile resolver and rebuilds the
// pipeline.
func (e *Engine) SetProfileService(svc service.ProfileResolver) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	e.deps.Profiles = svc
	e.buildPipeline()
}

// SetTerminologyService replaces the terminology service and rebuilds
// the pipeline.
func (e *Engine) SetTerminologyService(svc service.TerminologyService) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	e.deps.Terminology = svc
	e.buildPipeline()
}

// SetResourceStore replaces the local resource store and rebuilds the
// pipeline.
func (e *Engine) SetResourceStore(store service.ResourceStore) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	e.deps.Store = store
	e.buildPipeline()
}

// SetFHIRPathEvaluator replaces the FHIRPath evaluator and rebuilds
// the pipeline.
func (e *Engine) SetFHIRPathEvaluator(eval service.FHIRPathEvaluator) {
	e.pipeMu.Lock()
	defer e.pipeMu.Unlock()
	e.deps.Evaluator = eval
	e.buildPipeline()
}

// Validate validates a FHIR resource given as raw JSON. It returns
// ErrTooManyConcurrent when the in-flight cap is reached.
func (e *Engine) Validate(ctx context.Context, resource []byte) (*records.Result, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	return e.validate(ctx, resource, nil), nil
}

// ValidateMap validates a FHIR resource that has already been parsed.
// It returns ErrTooManyConcurrent when the in-flight cap is reached.
func (e *Engine) ValidateMap(ctx context.Context, resourceMap map[string]any) (*records.Result, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	return e.validateMap(ctx, nil, resourceMap, nil), nil
}

// ValidateWithProfiles validates a resource against explicitly
// requested profiles in addition to those the resource claims.
func (e *Engine) ValidateWithProfiles(ctx context.Context, resource []byte, profiles ...string) (*records.Result, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	return e.validate(ctx, resource, profiles), nil
}

// ValidateBatch validates multiple resources in parallel using the
// configured worker count. Results are returned in input order. Batch
// workers are not subject to the concurrency cap; the pool already
// bounds them.
func (e *Engine) ValidateBatch(ctx context.Context, resources [][]byte) []*records.Result {
	results := make([]*records.Result, len(resources))

	e.workerPoolOnce.Do(func() {
		workers := e.options.WorkerCount
		if workers <= 0 {
			workers = 4
		}
		e.workerPool = make(chan struct{}, workers)
	})

	var wg sync.WaitGroup
	for i, resource := range resources {
		wg.Add(1)
		go func(idx int, res []byte) {
			defer wg.Done()

			e.workerPool <- struct{}{}
			defer func() { <-e.workerPool }()

			results[idx] = e.validate(ctx, res, nil)
		}(i, resource)
	}

	wg.Wait()
	return results
}

func (e *Engine) acquire() error {
	select {
	case e.sem <- struct{}{}:
		return nil
	default:
		return ErrTooManyConcurrent
	}
}

func (e *Engine) release() {
	<-e.sem
}

// validate parses the raw JSON and runs the pipeline. Parse failures
// become a structural error result rather than a Go error.
func (e *Engine) validate(ctx context.Context, resource []byte, extraProfiles []string) *records.Result {
	start := time.Now()

	var resourceMap map[string]any
	if err := json.Unmarshal(resource, &resourceMap); err != nil {
		result := records.NewResult()
		result.AddIssue(records.Error(records.IssueTypeStructure).
			Diagnostics(fmt.Sprintf("Invalid JSON: %v", err)).
			Aspect(records.AspectStructural).
			Build())
		e.finish(result, start, true)
		e.bus.Publish(Event{
			Type:   EventValidationError,
			Result: result,
			Err:    err,
		})
		return result
	}

	return e.validateMap(ctx, resource, resourceMap, extraProfiles)
}

func (e *Engine) validateMap(ctx context.Context, resource []byte, resourceMap map[string]any, extraProfiles []string) *records.Result {
	start := time.Now()

	resourceType, _ := resourceMap["resourceType"].(string)
	resourceID, _ := resourceMap["id"].(string)

	if e.options.AllAspectsDisabled() {
		result := records.NewResult()
		result.ResourceType = resourceType
		result.ResourceID = resourceID
		e.finish(result, start, true)
		e.publishCompleted(result, start)
		return result
	}

	vctx := pipeline.AcquireContext()
	vctx.Resource = resource
	vctx.ResourceMap = resourceMap
	vctx.ResourceType = resourceType
	vctx.ResourceID = resourceID
	vctx.FHIRVersion = e.version
	vctx.Options = e.options
	vctx.Result = records.NewResult()
	vctx.Result.ResourceType = resourceType
	vctx.Result.ResourceID = resourceID

	vctx.Profiles = append(vctx.Profiles, extractMetaProfiles(resourceMap)...)
	for _, p := range extraProfiles {
		if p != "" {
			vctx.Profiles = append(vctx.Profiles, p)
		}
	}

	e.pipeMu.RLock()
	pipe := e.pipe
	e.pipeMu.RUnlock()
	pipe.Execute(ctx, vctx)

	result := vctx.Result
	vctx.Result = nil
	vctx.Release()

	e.finish(result, start, false)
	e.publishCompleted(result, start)
	return result
}

// finish computes the summary and stamps the result. Pipeline runs
// record their own validation timing; paths that bypass the pipeline
// pass recordTiming.
func (e *Engine) finish(result *records.Result, start time.Time, recordTiming bool) {
	result.Finalize(e.options.EnabledAspects)
	result.SettingsHash = e.settingsHash
	if recordTiming {
		e.metrics.RecordValidation(time.Since(start), result.Valid)
	}
	e.metrics.RecordIssues(result.Issues)
}

func (e *Engine) publishCompleted(result *records.Result, start time.Time) {
	if e.bus.SubscriberCount() == 0 {
		return
	}
	for _, a := range records.Aspects {
		d, ok := result.Performance[a]
		if !ok {
			continue
		}
		e.bus.Publish(Event{
			Type:         EventAspectCompleted,
			ResourceType: result.ResourceType,
			ResourceID:   result.ResourceID,
			Aspect:       a,
			Result:       result,
			Duration:     d,
		})
	}
	e.bus.Publish(Event{
		Type:         EventValidationCompleted,
		ResourceType: result.ResourceType,
		ResourceID:   result.ResourceID,
		Result:       result,
		Duration:     time.Since(start),
	})
}

// extractMetaProfiles returns the profile URLs the resource claims in
// meta.profile.
func extractMetaProfiles(resourceMap map[string]any) []string {
	meta, ok := resourceMap["meta"].(map[string]any)
	if !ok {
		return nil
	}
	arr, ok := meta["profile"].([]any)
	if !ok {
		return nil
	}

	profiles := make([]string, 0, len(arr))
	for _, p := range arr {
		if url, ok := p.(string); ok && url != "" {
			profiles = append(profiles, url)
		}
	}
	return profiles
}

// hashSettings derives a stable identifier from the options so results
// can be traced back to the configuration that produced them.
func hashSettings(o *records.Options) string {
	h := sha256.New()
	for _, a := range records.Aspects {
		fmt.Fprintf(h, "%s=%t;", a, o.EnabledAspects[a])
	}
	fmt.Fprintf(h, "parallel=%t;maxconc=%d;workers=%d;timeout=%s;",
		o.ParallelAspects, o.MaxConcurrentValidations, o.WorkerCount, o.AspectTimeout)
	fmt.Fprintf(h, "base=%s;probeto=%s;probeconc=%d;ttl=%s;depth=%d;",
		o.ReferenceBaseURL, o.ProbeTimeout, o.ProbeConcurrency, o.ReferenceCacheTTL, o.MaxReferenceDepth)
	fmt.Fprintf(h, "strict=%t;retry=%d/%s", o.StrictResourceTypes, o.RetryAttempts, o.RetryDelay)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *records.Metrics {
	return e.metrics
}

// Events returns the bus validation events are published on.
func (e *Engine) Events() *event.Bus[Event] {
	return e.bus
}

// Version returns the FHIR version this engine validates against.
func (e *Engine) Version() records.FHIRVersion {
	return e.version
}

// Options returns the engine's options.
func (e *Engine) Options() *records.Options {
	return e.options
}

// SettingsHash identifies the configuration the engine runs under.
func (e *Engine) SettingsHash() string {
	return e.settingsHash
}

// Close releases resources held by the engine.
func (e *Engine) Close() error {
	return nil
}
