package reference

import (
	"fmt"
	"strings"

	"github.com/medvertical/records"
	"github.com/medvertical/records/walker"
)

// ContainedResolver resolves "#id" references against a parent
// resource's contained array and validates contained usage.
type ContainedResolver struct{}

// NewContainedResolver creates a ContainedResolver.
func NewContainedResolver() *ContainedResolver {
	return &ContainedResolver{}
}

// Resolve returns the contained resource whose id matches the fragment,
// or nil when no such resource exists.
func (r *ContainedResolver) Resolve(parent map[string]any, ref string) map[string]any {
	if parent == nil || !strings.HasPrefix(ref, "#") {
		return nil
	}
	id := strings.TrimPrefix(ref, "#")
	if id == "" {
		return nil
	}

	contained, ok := parent["contained"].([]any)
	if !ok {
		return nil
	}
	for _, entry := range contained {
		resource, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if resourceID, _ := resource["id"].(string); resourceID == id {
			return resource
		}
	}
	return nil
}

// ValidateReference resolves one contained reference and, when the
// referencing field constrains its target types, checks the contained
// resource's declared type. allowedTypes may be nil for unconstrained
// fields.
func (r *ContainedResolver) ValidateReference(parent map[string]any, ref, path string, allowedTypes []string) []records.Issue {
	var issues []records.Issue

	resource := r.Resolve(parent, ref)
	if resource == nil {
		issues = append(issues, records.Error(records.IssueTypeNotFound).
			Diagnostics(fmt.Sprintf("Contained reference %q does not match any contained resource id", ref)).
			At(path).
			Aspect(records.AspectReference).
			Build())
		return issues
	}

	if len(allowedTypes) == 0 {
		return nil
	}

	resourceType, _ := resource["resourceType"].(string)
	for _, allowed := range allowedTypes {
		if resourceType == allowed {
			return nil
		}
	}
	issues = append(issues, records.Error(records.IssueTypeValue).
		Diagnostics(fmt.Sprintf("Contained resource %q has type %s; field allows %s", ref, resourceType, strings.Join(allowedTypes, ", "))).
		At(path).
		Aspect(records.AspectReference).
		Build())
	return issues
}

// Validate checks a parent resource's contained usage as a whole:
// every "#id" reference must resolve, and every contained resource must
// be referenced at least once.
func (r *ContainedResolver) Validate(parent map[string]any) []records.Issue {
	if parent == nil {
		return nil
	}

	var issues []records.Issue

	contained, _ := parent["contained"].([]any)
	declared := make(map[string]bool, len(contained))
	for i, entry := range contained {
		resource, ok := entry.(map[string]any)
		if !ok {
			issues = append(issues, records.Error(records.IssueTypeStructure).
				Diagnostics(fmt.Sprintf("contained[%d] is not a resource object", i)).
				Aspect(records.AspectReference).
				Build())
			continue
		}
		id, _ := resource["id"].(string)
		if id == "" {
			issues = append(issues, records.Error(records.IssueTypeRequired).
				Diagnostics(fmt.Sprintf("contained[%d] has no id and can never be referenced", i)).
				Aspect(records.AspectReference).
				Build())
			continue
		}
		declared[id] = false
	}

	// Collect fragment references from the parent and from the contained
	// resources themselves (contained resources may reference siblings).
	refs := walker.ExtractReferences(parent)
	for i, entry := range contained {
		if resource, ok := entry.(map[string]any); ok {
			refs = append(refs, walker.ExtractFromContained(resource, i)...)
		}
	}

	for _, found := range refs {
		if !strings.HasPrefix(found.Reference, "#") {
			continue
		}
		id := strings.TrimPrefix(found.Reference, "#")
		if _, ok := declared[id]; !ok {
			issues = append(issues, records.Error(records.IssueTypeNotFound).
				Diagnostics(fmt.Sprintf("Contained reference %q does not match any contained resource id", found.Reference)).
				At(found.Path).
				Aspect(records.AspectReference).
				Build())
			continue
		}
		declared[id] = true
	}

	for id, referenced := range declared {
		if !referenced {
			issues = append(issues, records.Warning(records.IssueTypeInformational).
				Diagnostics(fmt.Sprintf("Contained resource %q is declared but never referenced", id)).
				Aspect(records.AspectReference).
				Build())
		}
	}
	return issues
}
