package aspect

import (
	"context"
	"fmt"
	"strings"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/service"
)

// Terminology validates coded values against the bindings the
// resource's profile declares. Codes in required bindings must
// validate; extensible and preferred bindings downgrade failures to
// warnings; example bindings are not checked.
//
// The aspect needs a terminology server. The available gate lets the
// engine pull it out of the rotation when connectivity is lost, in
// which case resources get a single informational notice instead of
// false errors.
type Terminology struct {
	profiles    service.ProfileResolver
	terminology service.TerminologyService
	available   func() bool
}

// NewTerminology creates the terminology aspect. available may be nil,
// meaning always available.
func NewTerminology(profiles service.ProfileResolver, terminology service.TerminologyService, available func() bool) *Terminology {
	return &Terminology{profiles: profiles, terminology: terminology, available: available}
}

func (a *Terminology) Name() records.Aspect {
	return records.AspectTerminology
}

func (a *Terminology) Validate(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue

	if vctx.ResourceMap == nil || a.profiles == nil || a.terminology == nil {
		return issues
	}
	if a.available != nil && !a.available() {
		issues = append(issues, infoIssue(a.Name(), records.IssueTypeNotSupported,
			"Terminology server unavailable; code validation skipped", ""))
		return issues
	}

	profile, err := a.profiles.FetchStructureDefinitionByType(ctx, vctx.ResourceType)
	if err != nil || profile == nil {
		return issues
	}

	for i := range profile.Snapshot {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		def := &profile.Snapshot[i]
		if def.Binding == nil || def.Binding.ValueSet == "" {
			continue
		}
		strength := def.Binding.Strength
		if strength == "example" || strength == "" {
			continue
		}

		for _, value := range valuesAtPath(vctx.ResourceMap, def.Path, vctx.ResourceType) {
			issues = append(issues, a.checkValue(ctx, value, def, strength)...)
		}
	}
	return issues
}

// checkValue validates one coded element, whatever shape it takes.
func (a *Terminology) checkValue(ctx context.Context, value any, def *service.ElementDefinition, strength string) []records.Issue {
	valueSet := strings.SplitN(def.Binding.ValueSet, "|", 2)[0]

	switch v := value.(type) {
	case string:
		return a.validateCode(ctx, "", v, valueSet, def.Path, strength)
	case map[string]any:
		if codings, ok := v["coding"].([]any); ok {
			return a.validateConcept(ctx, codings, valueSet, def.Path, strength)
		}
		system, _ := v["system"].(string)
		if code, ok := v["code"].(string); ok {
			return a.validateCode(ctx, system, code, valueSet, def.Path, strength)
		}
	}
	return nil
}

// validateConcept passes when any coding of the concept validates.
func (a *Terminology) validateConcept(ctx context.Context, codings []any, valueSet, path, strength string) []records.Issue {
	if len(codings) == 0 {
		return nil
	}

	var firstFailure []records.Issue
	for _, c := range codings {
		coding, ok := c.(map[string]any)
		if !ok {
			continue
		}
		system, _ := coding["system"].(string)
		code, _ := coding["code"].(string)
		if code == "" {
			continue
		}
		issues := a.validateCode(ctx, system, code, valueSet, path, strength)
		if len(issues) == 0 {
			return nil
		}
		if firstFailure == nil {
			firstFailure = issues
		}
	}
	return firstFailure
}

func (a *Terminology) validateCode(ctx context.Context, system, code, valueSet, path, strength string) []records.Issue {
	result, err := a.terminology.ValidateCode(ctx, system, code, valueSet)
	if err != nil {
		return []records.Issue{warningIssue(a.Name(), records.IssueTypeProcessing,
			fmt.Sprintf("Could not validate code %q against %s: %v", code, valueSet, err), path)}
	}
	if result == nil || result.Valid {
		return nil
	}

	diagnostics := fmt.Sprintf("Code %q is not in ValueSet %s", code, valueSet)
	if system != "" {
		diagnostics = fmt.Sprintf("Code %q from system %s is not in ValueSet %s", code, system, valueSet)
	}
	if result.Message != "" {
		diagnostics += ": " + result.Message
	}

	if strength == "required" {
		return []records.Issue{errorIssue(a.Name(), records.IssueTypeCodeInvalid, diagnostics, path)}
	}
	return []records.Issue{warningIssue(a.Name(), records.IssueTypeCodeInvalid, diagnostics, path)}
}

// valuesAtPath collects the values at a snapshot path, fanning out
// through arrays. The leading resource type segment is stripped.
func valuesAtPath(resource map[string]any, path, resourceType string) []any {
	rel := strings.TrimPrefix(path, resourceType+".")
	if rel == path {
		return nil
	}

	current := []any{any(resource)}
	for _, segment := range strings.Split(rel, ".") {
		segment = strings.TrimSuffix(segment, "[x]")
		var next []any
		for _, node := range current {
			m, ok := node.(map[string]any)
			if !ok {
				continue
			}
			value, ok := m[segment]
			if !ok && strings.HasSuffix(path, "[x]") {
				for key, v := range m {
					if strings.HasPrefix(key, segment) && len(key) > len(segment) {
						value, ok = v, true
						break
					}
				}
			}
			if !ok {
				continue
			}
			if arr, isArr := value.([]any); isArr {
				next = append(next, arr...)
			} else {
				next = append(next, value)
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	return current
}

var _ pipeline.Aspect = (*Terminology)(nil)
