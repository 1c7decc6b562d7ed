package aspect

import (
	"context"
	"fmt"
	"strconv"
	"time"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/reference"
)

// Metadata validates the resource's meta element: versionId format,
// lastUpdated timestamps, profile URL shape, and security/tag coding
// completeness. A resource without meta passes with an informational
// note.
type Metadata struct {
	parser *reference.Parser
}

// NewMetadata creates the metadata aspect.
func NewMetadata() *Metadata {
	return &Metadata{parser: reference.NewParser(reference.ParserOptions{})}
}

func (a *Metadata) Name() records.Aspect {
	return records.AspectMetadata
}

func (a *Metadata) Validate(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue

	if vctx.ResourceMap == nil {
		return issues
	}

	meta, ok := vctx.ResourceMap["meta"].(map[string]any)
	if !ok {
		issues = append(issues, infoIssue(a.Name(), records.IssueTypeInformational,
			"Resource carries no meta element", "meta"))
		return issues
	}

	if versionID, ok := meta["versionId"].(string); ok {
		if _, err := strconv.ParseUint(versionID, 10, 64); err != nil {
			issues = append(issues, warningIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("meta.versionId %q is not a positive integer", versionID), "meta.versionId"))
		}
	}

	if lastUpdated, ok := meta["lastUpdated"].(string); ok {
		if t, err := time.Parse(time.RFC3339, lastUpdated); err != nil {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("meta.lastUpdated %q is not a valid instant", lastUpdated), "meta.lastUpdated"))
		} else if t.After(time.Now().Add(time.Minute)) {
			issues = append(issues, warningIssue(a.Name(), records.IssueTypeValue,
				"meta.lastUpdated lies in the future", "meta.lastUpdated"))
		}
	}

	issues = append(issues, a.checkProfiles(meta)...)
	issues = append(issues, a.checkCodings(meta, "security")...)
	issues = append(issues, a.checkCodings(meta, "tag")...)
	return issues
}

// checkProfiles verifies meta.profile entries parse as canonical URLs.
func (a *Metadata) checkProfiles(meta map[string]any) []records.Issue {
	declared, ok := meta["profile"].([]any)
	if !ok {
		return nil
	}

	var issues []records.Issue
	seen := make(map[string]bool, len(declared))
	for i, entry := range declared {
		path := fmt.Sprintf("meta.profile[%d]", i)
		url, ok := entry.(string)
		if !ok || url == "" {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
				"meta.profile entries must be canonical URL strings", path))
			continue
		}
		parsed := a.parser.Parse(url)
		if parsed.Kind != reference.KindCanonical && parsed.Kind != reference.KindAbsolute {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("meta.profile entry %q is not a canonical URL", url), path))
		}
		if seen[url] {
			issues = append(issues, warningIssue(a.Name(), records.IssueTypeDuplicate,
				fmt.Sprintf("Profile %q is declared more than once", url), path))
		}
		seen[url] = true
	}
	return issues
}

// checkCodings requires system and code on meta.security and meta.tag
// entries.
func (a *Metadata) checkCodings(meta map[string]any, field string) []records.Issue {
	entries, ok := meta[field].([]any)
	if !ok {
		return nil
	}

	var issues []records.Issue
	for i, entry := range entries {
		coding, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		path := fmt.Sprintf("meta.%s[%d]", field, i)
		code, _ := coding["code"].(string)
		system, _ := coding["system"].(string)
		if code == "" {
			issues = append(issues, errorIssue(a.Name(), records.IssueTypeRequired,
				fmt.Sprintf("meta.%s entries must carry a code", field), path))
		}
		if system == "" {
			issues = append(issues, warningIssue(a.Name(), records.IssueTypeValue,
				fmt.Sprintf("meta.%s entry has a code without a system", field), path))
		}
	}
	return issues
}

var _ pipeline.Aspect = (*Metadata)(nil)
