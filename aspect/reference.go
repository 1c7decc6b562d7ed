package aspect

import (
	"context"
	"fmt"
	"strings"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/graph"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/refcheck"
	"github.com/medvertical/records/reference"
	"github.com/medvertical/records/service"
	"github.com/medvertical/records/walker"
)

// Reference validates everything reference-shaped in a resource:
// format, contained resolution, version consistency, circular chains,
// and target existence. Existence goes to a local store when one is
// configured, otherwise to the server via HTTP probes; with neither,
// or when probing is gated off, unresolved references are reported as
// informational only.
type Reference struct {
	parser    *reference.Parser
	contained *reference.ContainedResolver
	versioned *reference.VersionedValidator
	canonical *reference.CanonicalValidator
	detector  *graph.Detector
	checker   *refcheck.Checker
	store     service.ResourceStore
	probing   func() bool
}

// ReferenceOption configures the reference aspect.
type ReferenceOption func(*Reference)

// WithChecker sets the HTTP existence checker.
func WithChecker(checker *refcheck.Checker) ReferenceOption {
	return func(a *Reference) { a.checker = checker }
}

// WithStore sets a local resource store consulted before any probe.
func WithStore(store service.ResourceStore) ReferenceOption {
	return func(a *Reference) { a.store = store }
}

// WithCanonicalFetcher enables resolution of canonical references.
func WithCanonicalFetcher(fetcher reference.CanonicalFetcher) ReferenceOption {
	return func(a *Reference) {
		a.canonical = reference.NewCanonicalValidator(a.parser, fetcher)
	}
}

// WithDetector overrides the cycle detector, e.g. to change depth.
func WithDetector(detector *graph.Detector) ReferenceOption {
	return func(a *Reference) { a.detector = detector }
}

// WithProbing gates HTTP probing; when the gate returns false the
// aspect behaves as if no checker were configured.
func WithProbing(gate func() bool) ReferenceOption {
	return func(a *Reference) { a.probing = gate }
}

// NewReference creates the reference aspect.
func NewReference(parser *reference.Parser, opts ...ReferenceOption) *Reference {
	if parser == nil {
		parser = reference.NewParser(reference.ParserOptions{StrictTypes: true})
	}
	a := &Reference{
		parser:    parser,
		contained: reference.NewContainedResolver(),
		versioned: reference.NewVersionedValidator(parser),
		canonical: reference.NewCanonicalValidator(parser, nil),
		detector:  graph.NewDetector(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Reference) Name() records.Aspect {
	return records.AspectReference
}

func (a *Reference) Validate(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue

	if vctx.ResourceMap == nil {
		return issues
	}

	found := walker.ExtractReferences(vctx.ResourceMap)

	parsed := make([]reference.Parsed, len(found))
	for i, f := range found {
		parsed[i] = a.parser.Parse(f.Reference)
		if parsed[i].Kind == reference.KindInvalid {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeInvalid,
				fmt.Sprintf("Invalid reference %q: %s", f.Reference, parsed[i].Reason), f.Path))
		}
	}

	issues = append(issues, tagAll(a.Name(), a.contained.Validate(vctx.ResourceMap))...)
	issues = append(issues, a.checkVersioned(found, parsed)...)
	issues = append(issues, a.checkCanonicals(ctx, found, parsed)...)
	issues = append(issues, a.checkCycles(vctx)...)
	issues = append(issues, a.checkExistence(ctx, vctx, found, parsed)...)
	return issues
}

// checkVersioned validates _history segments and warns on mixed
// versioned and unversioned references to the same target.
func (a *Reference) checkVersioned(found []walker.FoundReference, parsed []reference.Parsed) []records.Issue {
	var issues []records.Issue
	refs := make([]string, 0, len(found))

	for i, f := range found {
		if parsed[i].Kind == reference.KindInvalid {
			continue
		}
		issues = append(issues, tagAll(a.Name(), a.versioned.Validate(f.Reference))...)
		refs = append(refs, f.Reference)
	}
	issues = append(issues, tagAll(a.Name(), a.versioned.CheckConsistency(refs))...)
	return issues
}

// checkCanonicals validates canonical reference formats, resolves
// them when a fetcher is wired, and flags duplicates.
func (a *Reference) checkCanonicals(ctx context.Context, found []walker.FoundReference, parsed []reference.Parsed) []records.Issue {
	var issues []records.Issue
	var canonicals []string

	for i, f := range found {
		if parsed[i].Kind != reference.KindCanonical {
			continue
		}
		canonicals = append(canonicals, f.Reference)
		issues = append(issues, tagAll(a.Name(), a.canonical.Validate(f.Reference))...)
		_, resolveIssues := a.canonical.Resolve(ctx, f.Reference)
		issues = append(issues, tagAll(a.Name(), resolveIssues)...)
	}
	issues = append(issues, tagAll(a.Name(), a.canonical.FindDuplicates(canonicals))...)
	return issues
}

// checkCycles runs cycle detection over the resource (or Bundle).
func (a *Reference) checkCycles(vctx *pipeline.Context) []records.Issue {
	result := a.detector.Detect(vctx.ResourceMap)
	if !result.HasCycle {
		return nil
	}

	issues := make([]records.Issue, 0, len(result.AllCycles))
	for _, cycle := range result.AllCycles {
		issues = append(issues, errorIssue(a.Name(), records.IssueTypeCircular,
			fmt.Sprintf("Circular reference chain: %s", strings.Join(cycle, " -> ")), ""))
	}
	return issues
}

// checkExistence verifies relative and absolute references resolve to
// real resources.
func (a *Reference) checkExistence(ctx context.Context, vctx *pipeline.Context, found []walker.FoundReference, parsed []reference.Parsed) []records.Issue {
	var issues []records.Issue

	// In a Bundle, references satisfied by sibling entries need no
	// lookup.
	local := bundleTargets(vctx)

	type pending struct {
		index int
		ref   string
	}
	var remaining []pending

	for i, p := range parsed {
		if p.Kind != reference.KindRelative && p.Kind != reference.KindAbsolute {
			continue
		}
		key := p.ResourceType + "/" + p.ResourceID
		if local[key] || local[p.Raw] {
			continue
		}

		if a.store != nil {
			exists, err := a.store.ResourceExists(ctx, p.ResourceType, p.ResourceID)
			if err == nil {
				if !exists {
					issues = append(issues, errorIssue(a.Name(), records.IssueTypeNotFound,
						fmt.Sprintf("Referenced resource %s does not exist", key), found[i].Path))
				}
				continue
			}
		}
		remaining = append(remaining, pending{index: i, ref: found[i].Reference})
	}

	if len(remaining) == 0 {
		return issues
	}
	if a.checker == nil || (a.probing != nil && !a.probing()) {
		issues = append(issues, infoIssue(a.Name(), records.IssueTypeInformational,
			fmt.Sprintf("%d reference(s) not verified; no reachable server", len(remaining)), ""))
		return issues
	}

	refs := make([]string, len(remaining))
	for i, p := range remaining {
		refs[i] = p.ref
	}
	for i, result := range a.checker.CheckBatch(ctx, refs).Results {
		path := found[remaining[i].index].Path
		switch result.Status {
		case refcheck.StatusNotExists:
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeNotFound,
				fmt.Sprintf("Referenced resource %q does not exist on the server", result.Reference), path))
		case refcheck.StatusFailed:
			issues = append(issues, warningIssue(a.Name(), records.IssueTypeProcessing,
				fmt.Sprintf("Could not verify reference %q: %s", result.Reference, result.Error), path))
		}
	}
	return issues
}

// bundleTargets indexes the resources a Bundle carries, by fullUrl and
// Type/id.
func bundleTargets(vctx *pipeline.Context) map[string]bool {
	if !vctx.IsBundle() {
		return nil
	}
	entries, _ := vctx.ResourceMap["entry"].([]any)
	targets := make(map[string]bool, len(entries))
	for _, entry := range entries {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if fullURL, _ := entryMap["fullUrl"].(string); fullURL != "" {
			targets[fullURL] = true
		}
		if resource, ok := entryMap["resource"].(map[string]any); ok {
			resourceType, _ := resource["resourceType"].(string)
			id, _ := resource["id"].(string)
			if resourceType != "" && id != "" {
				targets[resourceType+"/"+id] = true
			}
		}
	}
	return targets
}

// tagAll stamps the aspect onto issues produced by the reference
// subpackage, which emits them untagged.
func tagAll(aspect records.Aspect, issues []records.Issue) []records.Issue {
	for i := range issues {
		if issues[i].Aspect == "" {
			issues[i].Aspect = aspect
		}
	}
	return issues
}

var _ pipeline.Aspect = (*Reference)(nil)
