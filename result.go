package records

import (
	"sync"
	"time"
)

// Score deduction weights per issue severity.
const (
	scorePerError       = 15
	scorePerWarning     = 5
	scorePerInformation = 1
)

// AspectSummary summarizes the issues one validation aspect produced.
type AspectSummary struct {
	// Aspect identifies the validation aspect
	Aspect Aspect `json:"aspect"`

	// IssueCount is the total number of issues for this aspect
	IssueCount int `json:"issueCount"`

	// ErrorCount includes fatal issues
	ErrorCount int `json:"errorCount"`

	// WarningCount is the number of warning issues
	WarningCount int `json:"warningCount"`

	// InformationCount is the number of informational issues
	InformationCount int `json:"informationCount"`

	// Score starts at 100 and is reduced per issue, floored at 0
	Score int `json:"score"`

	// Passed is true if the aspect produced no error or fatal issues
	Passed bool `json:"passed"`

	// Enabled reflects the configuration the aspect ran under
	Enabled bool `json:"enabled"`
}

// Summary aggregates the per-aspect breakdown into a single verdict.
type Summary struct {
	// AspectBreakdown holds one summary per aspect
	AspectBreakdown map[Aspect]AspectSummary `json:"aspectBreakdown"`

	// TotalIssues is the number of issues across enabled aspects
	TotalIssues int `json:"totalIssues"`

	// ValidationScore is the mean score of the enabled aspects (100 if none)
	ValidationScore int `json:"validationScore"`

	// Passed is true if every enabled aspect passed
	Passed bool `json:"passed"`
}

// Score computes an aspect score from issue counts.
// 100 minus 15 per error, 5 per warning, 1 per information, floored at 0.
func Score(errors, warnings, informational int) int {
	s := 100 - scorePerError*errors - scorePerWarning*warnings - scorePerInformation*informational
	if s < 0 {
		return 0
	}
	return s
}

// Result contains the outcome of validating a FHIR resource.
// Issues may be added concurrently while aspects run; Finalize computes the
// summary once all aspects have completed.
type Result struct {
	// Valid is true if no errors were found among enabled aspects
	Valid bool `json:"valid"`

	// ResourceType is the type of resource that was validated
	ResourceType string `json:"resourceType,omitempty"`

	// ResourceID is the id of the resource that was validated
	ResourceID string `json:"resourceId,omitempty"`

	// Issues contains all validation issues found
	Issues []Issue `json:"issues,omitempty"`

	// Summary is the aggregated per-aspect breakdown, set by Finalize
	Summary Summary `json:"summary"`

	// Performance holds per-aspect execution durations
	Performance map[Aspect]time.Duration `json:"performance,omitempty"`

	// ValidatedAt is when validation completed
	ValidatedAt time.Time `json:"validatedAt"`

	// SettingsHash identifies the settings the result was produced under
	SettingsHash string `json:"settingsUsed,omitempty"`

	// mu protects concurrent access to Issues and Performance
	mu sync.Mutex
}

// NewResult creates a new empty result.
func NewResult() *Result {
	return &Result{
		Valid:       true,
		Issues:      make([]Issue, 0, 8),
		Performance: make(map[Aspect]time.Duration, len(Aspects)),
	}
}

// AddIssue adds a validation issue to the result.
// This method is thread-safe.
func (r *Result) AddIssue(issue Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Issues = append(r.Issues, issue)
}

// AddIssues adds multiple issues to the result.
// This method is thread-safe.
func (r *Result) AddIssues(issues []Issue) {
	if len(issues) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.Issues = append(r.Issues, issues...)
}

// RecordTiming records the execution duration of one aspect.
// This method is thread-safe.
func (r *Result) RecordTiming(aspect Aspect, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Performance[aspect] = d
}

// HasErrors returns true if there are any error or fatal issues.
func (r *Result) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, issue := range r.Issues {
		if issue.IsError() {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error and fatal issues.
func (r *Result) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, issue := range r.Issues {
		if issue.IsError() {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning issues.
func (r *Result) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, issue := range r.Issues {
		if issue.IsWarning() {
			count++
		}
	}
	return count
}

// IssuesForAspect returns all issues attributed to one aspect.
func (r *Result) IssuesForAspect(aspect Aspect) []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	var issues []Issue
	for _, issue := range r.Issues {
		if issue.Aspect == aspect {
			issues = append(issues, issue)
		}
	}
	return issues
}

// Finalize computes the per-aspect breakdown, the aggregate score, and the
// overall verdict. The enabled map carries the per-aspect configuration the
// validation ran under; a disabled aspect appears in the breakdown with
// Enabled=false and does not influence the aggregate score or validity.
func (r *Result) Finalize(enabled map[Aspect]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	breakdown := make(map[Aspect]AspectSummary, len(Aspects))

	for _, aspect := range Aspects {
		summary := AspectSummary{
			Aspect:  aspect,
			Enabled: enabled[aspect],
			Passed:  true,
			Score:   100,
		}

		for _, issue := range r.Issues {
			if issue.Aspect != aspect {
				continue
			}
			summary.IssueCount++
			switch {
			case issue.IsError():
				summary.ErrorCount++
			case issue.IsWarning():
				summary.WarningCount++
			case issue.Severity == SeverityInformation:
				summary.InformationCount++
			}
		}

		summary.Score = Score(summary.ErrorCount, summary.WarningCount, summary.InformationCount)
		summary.Passed = summary.ErrorCount == 0
		breakdown[aspect] = summary
	}

	total := 0
	scoreSum := 0
	enabledCount := 0
	passed := true

	for _, summary := range breakdown {
		if !summary.Enabled {
			continue
		}
		total += summary.IssueCount
		scoreSum += summary.Score
		enabledCount++
		if !summary.Passed {
			passed = false
		}
	}

	score := 100
	if enabledCount > 0 {
		score = scoreSum / enabledCount
	}

	r.Summary = Summary{
		AspectBreakdown: breakdown,
		TotalIssues:     total,
		ValidationScore: score,
		Passed:          passed,
	}
	r.Valid = passed
	r.ValidatedAt = time.Now()
}

// Merge combines another result's issues into this one.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}

	other.mu.Lock()
	issues := make([]Issue, len(other.Issues))
	copy(issues, other.Issues)
	other.mu.Unlock()

	r.AddIssues(issues)
}
