package reference

import (
	"fmt"
	"strconv"

	"github.com/medvertical/records"
)

// VersionedValidator validates "_history" versioned references and
// canonical "|version" suffixes, and checks version consistency across
// reference sets.
type VersionedValidator struct {
	parser *Parser
}

// NewVersionedValidator creates a VersionedValidator.
func NewVersionedValidator(parser *Parser) *VersionedValidator {
	if parser == nil {
		parser = defaultParser
	}
	return &VersionedValidator{parser: parser}
}

// Validate checks a single versioned reference. "_history" version
// tokens must be numeric; canonical versions may be semantic strings.
func (v *VersionedValidator) Validate(ref string) []records.Issue {
	var issues []records.Issue

	parsed := v.parser.Parse(ref)
	if !parsed.IsValid {
		issues = append(issues, records.Error(records.IssueTypeInvalid).
			Diagnostics(fmt.Sprintf("Reference %q is malformed: %s", ref, parsed.Reason)).
			Aspect(records.AspectReference).
			Build())
		return issues
	}
	if parsed.VersionID == "" {
		return nil
	}

	switch parsed.Kind {
	case KindRelative, KindAbsolute:
		if _, err := strconv.ParseUint(parsed.VersionID, 10, 64); err != nil {
			issues = append(issues, records.Error(records.IssueTypeValue).
				Diagnostics(fmt.Sprintf("History version %q in %q must be numeric", parsed.VersionID, ref)).
				Aspect(records.AspectReference).
				Build())
		}
	case KindCanonical:
		// Semantic version strings are allowed on canonicals.
	}

	return issues
}

// CheckConsistency inspects a reference set for version disagreements.
// The same resource referenced with different versions, or referenced
// both with and without a version, yields a warning.
func (v *VersionedValidator) CheckConsistency(refs []string) []records.Issue {
	type versionUse struct {
		versions    map[string]bool
		unversioned bool
	}

	uses := make(map[string]*versionUse)
	for _, ref := range refs {
		parsed := v.parser.Parse(ref)
		if !parsed.IsValid || parsed.ResourceType == "" || parsed.ResourceID == "" {
			continue
		}

		key := parsed.ResourceType + "/" + parsed.ResourceID
		use, ok := uses[key]
		if !ok {
			use = &versionUse{versions: make(map[string]bool)}
			uses[key] = use
		}
		if parsed.VersionID == "" {
			use.unversioned = true
		} else {
			use.versions[parsed.VersionID] = true
		}
	}

	var issues []records.Issue
	for target, use := range uses {
		if len(use.versions) > 1 {
			issues = append(issues, records.Warning(records.IssueTypeValue).
				Diagnostics(fmt.Sprintf("Resource %s is referenced with %d different versions", target, len(use.versions))).
				Aspect(records.AspectReference).
				Build())
		}
		if len(use.versions) > 0 && use.unversioned {
			issues = append(issues, records.Warning(records.IssueTypeValue).
				Diagnostics(fmt.Sprintf("Resource %s is referenced both with and without a version", target)).
				Aspect(records.AspectReference).
				Build())
		}
	}
	return issues
}

// ToUnversioned strips the version from a reference. Invalid references
// are returned unchanged.
func (v *VersionedValidator) ToUnversioned(ref string) string {
	parsed := v.parser.Parse(ref)
	if !parsed.IsValid {
		return ref
	}
	parsed.VersionID = ""
	return parsed.String()
}

// ToVersioned pins a reference to a version. Invalid references are
// returned unchanged.
func (v *VersionedValidator) ToVersioned(ref, version string) string {
	parsed := v.parser.Parse(ref)
	if !parsed.IsValid || version == "" {
		return ref
	}
	parsed.VersionID = version
	return parsed.String()
}

// Latest returns the highest version from a set. Versions are compared
// numerically when all tokens parse as integers, falling back to string
// comparison otherwise. Returns "" for an empty set.
func (v *VersionedValidator) Latest(versions []string) string {
	if len(versions) == 0 {
		return ""
	}

	latest := versions[0]
	for _, candidate := range versions[1:] {
		if versionLess(latest, candidate) {
			latest = candidate
		}
	}
	return latest
}

// versionLess reports whether a sorts before b, numerically when both
// parse as integers.
func versionLess(a, b string) bool {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	if aerr == nil && berr == nil {
		return an < bn
	}
	return a < b
}
