package aspect

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/service"
)

// Profile validates a resource against the profiles it claims in
// meta.profile plus any profiles requested for the run. Each profile
// is resolved, its cardinalities enforced, and fixed values compared.
type Profile struct {
	profiles service.ProfileResolver
}

// NewProfile creates the profile aspect.
func NewProfile(profiles service.ProfileResolver) *Profile {
	return &Profile{profiles: profiles}
}

func (a *Profile) Name() records.Aspect {
	return records.AspectProfile
}

func (a *Profile) Validate(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue

	if vctx.ResourceMap == nil || a.profiles == nil {
		return issues
	}

	claimed := metaProfiles(vctx.ResourceMap)
	claimed = append(claimed, vctx.Profiles...)
	claimed = dedupe(claimed)

	if len(claimed) == 0 {
		issues = append(issues, infoIssue(a.Name(), records.IssueTypeInformational,
			"Resource declares no profiles; validated against the base definition only", "meta.profile"))
		return issues
	}

	for _, url := range claimed {
		select {
		case <-ctx.Done():
			return issues
		default:
		}

		profile, err := a.profiles.FetchStructureDefinition(ctx, url)
		if err != nil || profile == nil {
			issues = append(issues, warningIssue(a.Name(), records.IssueTypeNotFound,
				fmt.Sprintf("Profile %q could not be resolved", url), "meta.profile"))
			continue
		}

		if profile.Type != "" && profile.Type != vctx.ResourceType {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeInvalid,
				fmt.Sprintf("Profile %q constrains %s, not %s", url, profile.Type, vctx.ResourceType),
				"meta.profile"))
			continue
		}

		issues = append(issues, a.checkCardinality(vctx, profile)...)
		issues = append(issues, a.checkFixedValues(vctx, profile)...)
	}
	return issues
}

// checkCardinality enforces min/max on top-level elements of the
// profile snapshot.
func (a *Profile) checkCardinality(vctx *pipeline.Context, profile *service.StructureDefinition) []records.Issue {
	var issues []records.Issue
	prefix := vctx.ResourceType + "."

	for i := range profile.Snapshot {
		def := &profile.Snapshot[i]
		if !strings.HasPrefix(def.Path, prefix) {
			continue
		}
		field := strings.TrimSuffix(def.Path[len(prefix):], "[x]")
		if strings.Contains(field, ".") {
			continue
		}

		value, present := vctx.ResourceMap[field]
		count := 0
		if present {
			if arr, ok := value.([]any); ok {
				count = len(arr)
			} else {
				count = 1
			}
		} else if hasChoiceField(vctx.ResourceMap, field) {
			count = 1
		}

		if count < def.Min {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeRequired,
				fmt.Sprintf("Profile %q requires at least %d occurrence(s) of %q, found %d",
					profile.URL, def.Min, field, count),
				def.Path))
		}
		if def.Max != "" && def.Max != "*" {
			if max, err := parseMax(def.Max); err == nil && count > max {
				issues = append(issues, errorIssue(a.Name(), records.IssueTypeStructure,
					fmt.Sprintf("Profile %q allows at most %s occurrence(s) of %q, found %d",
						profile.URL, def.Max, field, count),
					def.Path))
			}
		}
	}
	return issues
}

// checkFixedValues compares top-level elements against fixed[x] and
// pattern[x] constraints. Fixed demands equality; pattern demands the
// element at least carries the given value.
func (a *Profile) checkFixedValues(vctx *pipeline.Context, profile *service.StructureDefinition) []records.Issue {
	var issues []records.Issue
	prefix := vctx.ResourceType + "."

	for i := range profile.Snapshot {
		def := &profile.Snapshot[i]
		if def.Fixed == nil && def.Pattern == nil {
			continue
		}
		if !strings.HasPrefix(def.Path, prefix) {
			continue
		}
		field := def.Path[len(prefix):]
		if strings.Contains(field, ".") {
			continue
		}

		value, present := vctx.ResourceMap[field]
		if !present {
			continue
		}

		if def.Fixed != nil && !reflect.DeepEqual(value, def.Fixed) {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("Element %q must have fixed value %v", field, def.Fixed), def.Path))
		}
		if def.Pattern != nil && !matchesPattern(value, def.Pattern) {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("Element %q does not match the required pattern", field), def.Path))
		}
	}
	return issues
}

// matchesPattern checks pattern semantics: scalars compare equal, maps
// must contain every pattern key with a matching value.
func matchesPattern(value, pattern any) bool {
	patternMap, ok := pattern.(map[string]any)
	if !ok {
		return reflect.DeepEqual(value, pattern)
	}
	valueMap, ok := value.(map[string]any)
	if !ok {
		return false
	}
	for k, pv := range patternMap {
		vv, present := valueMap[k]
		if !present || !matchesPattern(vv, pv) {
			return false
		}
	}
	return true
}

func parseMax(max string) (int, error) {
	n := 0
	for _, c := range max {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric max %q", max)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

var _ pipeline.Aspect = (*Profile)(nil)
