package aspect

import (
	"context"
	"fmt"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/pipeline"
	"github.com/medvertical/records/service"
)

// Rule is one custom invariant evaluated against every resource of a
// matching type.
type Rule struct {
	// Key identifies the rule in diagnostics.
	Key string

	// ResourceType limits the rule to one type; empty applies it to
	// every resource.
	ResourceType string

	// Expression is the FHIRPath expression that must hold.
	Expression string

	// Severity is "error" or "warning".
	Severity string

	// Human is shown when the rule fails.
	Human string
}

// BusinessRule evaluates FHIRPath invariants: the constraints the
// resource's profile declares plus any custom rules configured on the
// engine.
type BusinessRule struct {
	profiles  service.ProfileResolver
	evaluator service.FHIRPathEvaluator
	rules     []Rule
}

// NewBusinessRule creates the business-rule aspect. profiles may be
// nil, in which case only custom rules run.
func NewBusinessRule(profiles service.ProfileResolver, evaluator service.FHIRPathEvaluator, rules ...Rule) *BusinessRule {
	return &BusinessRule{profiles: profiles, evaluator: evaluator, rules: rules}
}

func (a *BusinessRule) Name() records.Aspect {
	return records.AspectBusinessRule
}

func (a *BusinessRule) Validate(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue

	if vctx.ResourceMap == nil || a.evaluator == nil {
		return issues
	}

	issues = append(issues, a.checkProfileConstraints(ctx, vctx)...)
	issues = append(issues, a.checkCustomRules(ctx, vctx)...)
	return issues
}

func (a *BusinessRule) checkProfileConstraints(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	if a.profiles == nil {
		return nil
	}
	profile, err := a.profiles.FetchStructureDefinitionByType(ctx, vctx.ResourceType)
	if err != nil || profile == nil {
		return nil
	}

	var issues []records.Issue
	for i := range profile.Snapshot {
		def := &profile.Snapshot[i]
		for _, constraint := range def.Constraints {
			select {
			case <-ctx.Done():
				return issues
			default:
			}
			if constraint.Expression == "" {
				continue
			}
			// Constraints below the root element would need element
			// context to evaluate; only root-level ones apply to the
			// whole resource.
			if def.Path != vctx.ResourceType {
				continue
			}
			issues = append(issues, a.evaluate(ctx, vctx,
				constraint.Expression, constraint.Key, constraint.Human, constraint.Severity, def.Path)...)
		}
	}
	return issues
}

func (a *BusinessRule) checkCustomRules(ctx context.Context, vctx *pipeline.Context) []records.Issue {
	var issues []records.Issue
	for _, rule := range a.rules {
		if rule.ResourceType != "" && rule.ResourceType != vctx.ResourceType {
			continue
		}
		select {
		case <-ctx.Done():
			return issues
		default:
		}
		issues = append(issues, a.evaluate(ctx, vctx,
			rule.Expression, rule.Key, rule.Human, rule.Severity, "")...)
	}
	return issues
}

func (a *BusinessRule) evaluate(ctx context.Context, vctx *pipeline.Context, expression, key, human, severity, path string) []records.Issue {
	ok, err := a.evaluator.Evaluate(ctx, expression, vctx.ResourceMap)
	if err != nil {
		return []records.Issue{warningIssue(a.Name(), records.IssueTypeProcessing,
			fmt.Sprintf("Could not evaluate rule %s: %v", key, err), path)}
	}
	if ok {
		return nil
	}

	diagnostics := human
	if diagnostics == "" {
		diagnostics = fmt.Sprintf("Expression %q evaluated to false", expression)
	}
	diagnostics = fmt.Sprintf("Rule %s failed: %s", key, diagnostics)

	if severity == "warning" {
		return []records.Issue{warningIssue(a.Name(), records.IssueTypeBusinessRule, diagnostics, path)}
	}
	return []records.Issue{errorIssue(a.Name(), records.IssueTypeBusinessRule, diagnostics, path)}
}

var _ pipeline.Aspect = (*BusinessRule)(nil)
