// Package aspect holds the six validation aspects: structural,
// profile, terminology, reference, business-rule, and metadata. Each
// aspect is an independent pipeline.Aspect; the engine registers them
// with structural running ahead of the rest.
package aspect

import (
	records "github.com/medvertical/records"
	"github.com/medvertical/records/service"
)

// errorIssue builds an error tagged with the given aspect.
func errorIssue(aspect records.Aspect, code records.IssueType, diagnostics, path string) records.Issue {
	return records.Error(code).Diagnostics(diagnostics).At(path).Aspect(aspect).Build()
}

// warningIssue builds a warning tagged with the given aspect.
func warningIssue(aspect records.Aspect, code records.IssueType, diagnostics, path string) records.Issue {
	return records.Warning(code).Diagnostics(diagnostics).At(path).Aspect(aspect).Build()
}

// infoIssue builds an informational issue tagged with the given aspect.
func infoIssue(aspect records.Aspect, code records.IssueType, diagnostics, path string) records.Issue {
	return records.Info(code).Diagnostics(diagnostics).At(path).Aspect(aspect).Build()
}

// metaProfiles extracts the profile URLs a resource claims in
// meta.profile.
func metaProfiles(resource map[string]any) []string {
	meta, ok := resource["meta"].(map[string]any)
	if !ok {
		return nil
	}
	declared, ok := meta["profile"].([]any)
	if !ok {
		return nil
	}
	profiles := make([]string, 0, len(declared))
	for _, p := range declared {
		if s, ok := p.(string); ok {
			profiles = append(profiles, s)
		}
	}
	return profiles
}

// validID reports whether a value satisfies the FHIR id pattern
// [A-Za-z0-9\-\.]{1,64}.
func validID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.':
		default:
			return false
		}
	}
	return true
}

// elementIndex maps snapshot paths to their definitions.
func elementIndex(snapshot []service.ElementDefinition) map[string]*service.ElementDefinition {
	index := make(map[string]*service.ElementDefinition, len(snapshot))
	for i := range snapshot {
		index[snapshot[i].Path] = &snapshot[i]
	}
	return index
}

// primitiveTypes lists the FHIR primitive type codes.
var primitiveTypes = map[string]bool{
	"boolean":      true,
	"integer":      true,
	"integer64":    true,
	"string":       true,
	"decimal":      true,
	"uri":          true,
	"url":          true,
	"canonical":    true,
	"base64Binary": true,
	"instant":      true,
	"date":         true,
	"dateTime":     true,
	"time":         true,
	"code":         true,
	"oid":          true,
	"id":           true,
	"markdown":     true,
	"unsignedInt":  true,
	"positiveInt":  true,
	"uuid":         true,
	"xhtml":        true,
}

// goTypeMatches reports whether a JSON value can carry the given FHIR
// primitive type.
func goTypeMatches(value any, typeCode string) bool {
	switch typeCode {
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer", "integer64", "unsignedInt", "positiveInt":
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case int, int64:
			return true
		}
		return false
	case "decimal":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	default:
		// Everything else is carried as a JSON string.
		_, ok := value.(string)
		return ok
	}
}
