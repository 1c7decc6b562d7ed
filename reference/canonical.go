package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/medvertical/records"
	"github.com/medvertical/records/cache"
)

// CanonicalResource is the subset of a fetched conformance resource
// needed for canonical validation.
type CanonicalResource struct {
	// URL is the resource's declared canonical URL.
	URL string

	// Version is the resource's declared business version.
	Version string

	// ResourceType is the conformance resource type.
	ResourceType string
}

// CanonicalFetcher retrieves a conformance resource by canonical URL.
// Implementations perform the network access; the validator itself never
// does.
type CanonicalFetcher interface {
	FetchCanonical(ctx context.Context, url string) (*CanonicalResource, error)
}

// CanonicalValidator validates canonical URL references. Resolution is
// optional: without a fetcher only format checks run.
type CanonicalValidator struct {
	parser  *Parser
	fetcher CanonicalFetcher
	cache   *cache.Cache[string, *CanonicalResource]
}

// NewCanonicalValidator creates a CanonicalValidator. fetcher may be nil.
func NewCanonicalValidator(parser *Parser, fetcher CanonicalFetcher) *CanonicalValidator {
	if parser == nil {
		parser = defaultParser
	}
	return &CanonicalValidator{
		parser:  parser,
		fetcher: fetcher,
		cache:   cache.New[string, *CanonicalResource](256),
	}
}

// Validate checks the format of a canonical reference.
func (v *CanonicalValidator) Validate(ref string) []records.Issue {
	var issues []records.Issue

	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") && !strings.HasPrefix(ref, "urn:") {
		issues = append(issues, records.Error(records.IssueTypeInvalid).
			Diagnostics(fmt.Sprintf("Canonical reference %q must be an http(s) URL or a urn", ref)).
			Aspect(records.AspectReference).
			Build())
		return issues
	}

	parsed := v.parser.Parse(ref)
	if !parsed.IsValid {
		issues = append(issues, records.Error(records.IssueTypeInvalid).
			Diagnostics(fmt.Sprintf("Canonical reference %q is malformed: %s", ref, parsed.Reason)).
			Aspect(records.AspectReference).
			Build())
		return issues
	}

	if parsed.Kind == KindCanonical && parsed.ResourceType == "" && !strings.HasPrefix(ref, "urn:") {
		issues = append(issues, records.Warning(records.IssueTypeValue).
			Diagnostics(fmt.Sprintf("Canonical reference %q does not address a recognized conformance resource type", ref)).
			Aspect(records.AspectReference).
			Build())
	}

	return issues
}

// Resolve fetches the referenced conformance resource and reports
// mismatches between the reference and what the server returned.
// Resolutions are cached by canonical URL (without version).
func (v *CanonicalValidator) Resolve(ctx context.Context, ref string) (*CanonicalResource, []records.Issue) {
	var issues []records.Issue

	parsed := v.parser.Parse(ref)
	if !parsed.IsValid || parsed.Kind != KindCanonical {
		issues = append(issues, records.Error(records.IssueTypeInvalid).
			Diagnostics(fmt.Sprintf("Cannot resolve %q: not a valid canonical reference", ref)).
			Aspect(records.AspectReference).
			Build())
		return nil, issues
	}
	if v.fetcher == nil {
		return nil, nil
	}

	resource, ok := v.cache.Get(parsed.CanonicalURL)
	if !ok {
		var err error
		resource, err = v.fetcher.FetchCanonical(ctx, parsed.CanonicalURL)
		if err != nil {
			issues = append(issues, records.Warning(records.IssueTypeNotFound).
				Diagnostics(fmt.Sprintf("Canonical %q could not be resolved: %v", parsed.CanonicalURL, err)).
				Aspect(records.AspectReference).
				Build())
			return nil, issues
		}
		v.cache.Set(parsed.CanonicalURL, resource)
	}

	if resource.URL != "" && resource.URL != parsed.CanonicalURL {
		issues = append(issues, records.Error(records.IssueTypeValue).
			Diagnostics(fmt.Sprintf("Canonical URL mismatch: reference %q resolved to a resource declaring url %q", parsed.CanonicalURL, resource.URL)).
			Aspect(records.AspectReference).
			Build())
	}
	if parsed.VersionID != "" && resource.Version != "" && resource.Version != parsed.VersionID {
		issues = append(issues, records.Error(records.IssueTypeValue).
			Diagnostics(fmt.Sprintf("Canonical version mismatch: reference pins %q but the resource declares version %q", parsed.VersionID, resource.Version)).
			Aspect(records.AspectReference).
			Build())
	}

	return resource, issues
}

// FindDuplicates reports canonical references that appear more than once
// in a reference set, such as a bundle's collected canonicals.
func (v *CanonicalValidator) FindDuplicates(refs []string) []records.Issue {
	seen := make(map[string]int, len(refs))
	var issues []records.Issue

	for _, ref := range refs {
		parsed := v.parser.Parse(ref)
		if !parsed.IsValid || parsed.Kind != KindCanonical {
			continue
		}
		seen[parsed.String()]++
	}

	for canonical, count := range seen {
		if count > 1 {
			issues = append(issues, records.Warning(records.IssueTypeDuplicate).
				Diagnostics(fmt.Sprintf("Canonical reference %q appears %d times", canonical, count)).
				Aspect(records.AspectReference).
				Build())
		}
	}
	return issues
}
