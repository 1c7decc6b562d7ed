package refcheck

import "github.com/medvertical/records/walker"

// ExtractReferences collects the raw reference strings of a resource,
// in traversal order, for feeding into CheckBatch.
func ExtractReferences(resource map[string]any) []string {
	found := walker.ExtractReferences(resource)
	refs := make([]string, len(found))
	for i, f := range found {
		refs[i] = f.Reference
	}
	return refs
}

// FilterExisting returns the results whose target was confirmed.
func FilterExisting(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.Status == StatusExists {
			out = append(out, r)
		}
	}
	return out
}

// FilterMissing returns the results whose target the server denied.
// Failed probes are not included; absence was not established for
// those.
func FilterMissing(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.Status == StatusNotExists {
			out = append(out, r)
		}
	}
	return out
}

// AllExist reports whether every probe confirmed its target.
func AllExist(results []CheckResult) bool {
	for _, r := range results {
		if r.Status != StatusExists {
			return false
		}
	}
	return true
}
