package aspect

import (
	"context"
	"fmt"
	"strings"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/reference"
	"github.com/medvertical/records/service"
)

// Structural validates the basic shape of a resource: a known
// resourceType, a well-formed id, required top-level elements, no
// unknown top-level elements, and primitive values of the right JSON
// kind. It runs before every other aspect.
type Structural struct {
	profiles service.ProfileResolver
}

// NewStructural creates the structural aspect. The resolver may be
// nil; element-level checks are skipped without one.
func NewStructural(profiles service.ProfileResolver) *Structural {
	return &Structural{profiles: profiles}
}

func (a *Structural) Name() records.Aspect {
	return records.AspectStructural
}

func (a *Structural) Validate(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue

	if vctx.ResourceMap == nil {
		issues = append(issues, errorIssue(a.Name(), records.IssueTypeStructure,
			"Resource is not a JSON object", ""))
		return issues
	}

	if vctx.ResourceType == "" {
		issues = append(issues, errorIssue(a.Name(), records.IssueTypeRequired,
			"Resource must have a 'resourceType' element", "resourceType"))
		return issues
	}
	if !reference.IsResourceType(vctx.ResourceType) {
		issues = append(issues, errorIssue(a.Name(), records.IssueTypeStructure,
			fmt.Sprintf("Unknown resource type %q", vctx.ResourceType), "resourceType"))
		return issues
	}

	if id, ok := vctx.ResourceMap["id"].(string); ok && !validID(id) {
		issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
			fmt.Sprintf("Invalid id format: %q", id), "id"))
	}

	if a.profiles == nil {
		return issues
	}

	profile, err := a.profiles.FetchStructureDefinitionByType(ctx, vctx.ResourceType)
	if err != nil || profile == nil {
		issues = append(issues, warningIssue(a.Name(), records.IssueTypeNotFound,
			fmt.Sprintf("No StructureDefinition available for %s; element checks skipped", vctx.ResourceType),
			vctx.ResourceType))
		return issues
	}

	issues = append(issues, a.checkRequired(vctx, profile)...)
	issues = append(issues, a.checkElements(vctx, profile)...)
	return issues
}

// checkRequired verifies every top-level element with min >= 1 is
// present.
func (a *Structural) checkRequired(vctx *pipeline.Context, profile *service.StructureDefinition) []records.Issue {
	var issues []records.Issue
	prefix := vctx.ResourceType + "."

	for i := range profile.Snapshot {
		def := &profile.Snapshot[i]
		if def.Min < 1 || !strings.HasPrefix(def.Path, prefix) {
			continue
		}
		field := def.Path[len(prefix):]
		if strings.Contains(field, ".") {
			continue
		}
		field = strings.TrimSuffix(field, "[x]")

		if !hasChoiceField(vctx.ResourceMap, field) {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeRequired,
				fmt.Sprintf("Required element %q is missing", field),
				vctx.ResourceType+"."+field))
		}
	}
	return issues
}

// checkElements flags top-level elements the profile does not define
// and primitives whose JSON kind does not fit their declared type.
func (a *Structural) checkElements(vctx *pipeline.Context, profile *service.StructureDefinition) []records.Issue {
	var issues []records.Issue
	index := elementIndex(profile.Snapshot)

	for key, value := range vctx.ResourceMap {
		if key == "resourceType" {
			continue
		}
		// Primitive extensions ride alongside their element.
		name := strings.TrimPrefix(key, "_")
		path := vctx.ResourceType + "." + name

		def, ok := index[path]
		if !ok {
			def, ok = findChoiceDefinition(index, vctx.ResourceType, name)
		}
		if !ok {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeStructure,
				fmt.Sprintf("Element %q is not defined for %s", key, vctx.ResourceType), path))
			continue
		}
		if key[0] == '_' {
			continue
		}
		issues = append(issues, a.checkPrimitive(def, value, path)...)
	}
	return issues
}

func (a *Structural) checkPrimitive(def *service.ElementDefinition, value any, path string) []records.Issue {
	if len(def.Types) == 0 {
		return nil
	}

	values := []any{value}
	if arr, ok := value.([]any); ok {
		if def.Max == "1" {
			return []records.Issue{errorIssue(a.Name(), records.IssueTypeStructure,
				fmt.Sprintf("Element %q does not allow repetition", path), path)}
		}
		values = arr
	}

	var issues []records.Issue
	for _, v := range values {
		if _, ok := v.(map[string]any); ok {
			continue
		}
		matched := false
		for _, typeRef := range def.Types {
			if !primitiveTypes[typeRef.Code] || goTypeMatches(v, typeRef.Code) {
				matched = true
				break
			}
		}
		if !matched {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("Value of %q does not match its declared type", path), path))
		}
	}
	return issues
}

// hasChoiceField reports whether field or any choice variant of it
// (valueString, valueQuantity, ...) is present.
func hasChoiceField(resource map[string]any, field string) bool {
	if _, ok := resource[field]; ok {
		return true
	}
	for key := range resource {
		if strings.HasPrefix(key, field) && len(key) > len(field) {
			rest := key[len(field):]
			if rest[0] >= 'A' && rest[0] <= 'Z' {
				return true
			}
		}
	}
	return false
}

// findChoiceDefinition matches a concrete choice element name, e.g.
// valueQuantity, to its value[x] definition.
func findChoiceDefinition(index map[string]*service.ElementDefinition, resourceType, field string) (*service.ElementDefinition, bool) {
	for i := len(field) - 1; i > 0; i-- {
		if field[i] >= 'A' && field[i] <= 'Z' {
			if def, ok := index[resourceType+"."+field[:i]+"[x]"]; ok {
				return def, true
			}
		}
	}
	return nil, false
}

var _ pipeline.Aspect = (*Structural)(nil)
