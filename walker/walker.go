// Package walker extracts reference strings from arbitrary FHIR
// resources via generic deep traversal.
package walker

import (
	"fmt"
	"strconv"
)

// FoundReference is one reference string discovered during traversal.
type FoundReference struct {
	// Reference is the raw reference string.
	Reference string

	// Path is the FHIRPath-style location of the reference element
	// (e.g., "Patient.managingOrganization.reference").
	Path string
}

// ExtractReferences walks a parsed resource and collects every
// "reference" string field. The root-level "contained" key is excluded
// so contained resources are not conflated with the containing
// resource's own references; callers traverse contained entries
// separately.
func ExtractReferences(resource map[string]any) []FoundReference {
	if resource == nil {
		return nil
	}

	root, _ := resource["resourceType"].(string)
	if root == "" {
		root = "Resource"
	}

	var found []FoundReference
	for key, value := range resource {
		if key == "contained" || key == "resourceType" {
			continue
		}
		walk(value, key == "reference", root+"."+key, &found)
	}
	return found
}

// ExtractFromContained collects references from one entry of a
// resource's contained array.
func ExtractFromContained(contained map[string]any, index int) []FoundReference {
	if contained == nil {
		return nil
	}

	prefix := "contained[" + strconv.Itoa(index) + "]"
	var found []FoundReference
	for key, value := range contained {
		if key == "resourceType" {
			continue
		}
		walk(value, key == "reference", prefix+"."+key, &found)
	}
	return found
}

// ExtractFromBundle collects references per Bundle entry, keyed by entry
// index. Nested "contained" arrays inside entry resources are skipped at
// their root, mirroring single-resource extraction.
func ExtractFromBundle(bundle map[string]any) map[int][]FoundReference {
	entries, ok := bundle["entry"].([]any)
	if !ok {
		return nil
	}

	result := make(map[int][]FoundReference, len(entries))
	for i, entry := range entries {
		entryMap, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		resource, ok := entryMap["resource"].(map[string]any)
		if !ok {
			continue
		}

		refs := ExtractReferences(resource)
		prefix := fmt.Sprintf("Bundle.entry[%d].resource", i)
		for j := range refs {
			refs[j].Path = prefix + "." + trimRootSegment(refs[j].Path)
		}
		result[i] = refs
	}
	return result
}

// walk recurses through maps, arrays, and scalars. A string is recorded
// when it sits in a field named "reference".
func walk(value any, isReference bool, path string, found *[]FoundReference) {
	switch v := value.(type) {
	case string:
		if isReference && v != "" {
			*found = append(*found, FoundReference{Reference: v, Path: path})
		}
	case map[string]any:
		for key, child := range v {
			walk(child, key == "reference", path+"."+key, found)
		}
	case []any:
		for i, item := range v {
			walk(item, isReference, path+"["+strconv.Itoa(i)+"]", found)
		}
	}
}

// trimRootSegment drops the leading "Type." segment from a path.
func trimRootSegment(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return path
}
