package records

import "testing"

func TestIssue_IsError(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityFatal, true},
		{SeverityError, true},
		{SeverityWarning, false},
		{SeverityInformation, false},
	}

	for _, tt := range tests {
		issue := Issue{Severity: tt.severity}
		if got := issue.IsError(); got != tt.want {
			t.Errorf("IsError() with %s = %v; want %v", tt.severity, got, tt.want)
		}
	}
}

func TestIssueBuilder(t *testing.T) {
	issue := Error(IssueTypeNotFound).
		Diagnostics("Referenced resource Organization/999 does not exist").
		At("Patient.managingOrganization.reference").
		Aspect(AspectReference).
		Build()

	if issue.Severity != SeverityError {
		t.Errorf("Severity = %s; want %s", issue.Severity, SeverityError)
	}
	if issue.Code != IssueTypeNotFound {
		t.Errorf("Code = %s; want %s", issue.Code, IssueTypeNotFound)
	}
	if issue.Aspect != AspectReference {
		t.Errorf("Aspect = %s; want %s", issue.Aspect, AspectReference)
	}
	if len(issue.Expression) != 1 || issue.Expression[0] != "Patient.managingOrganization.reference" {
		t.Errorf("Expression = %v; want single path", issue.Expression)
	}
}

func TestIssueBuilder_Warning(t *testing.T) {
	issue := Warning(IssueTypeValue).Diagnostics("mixed versions").Build()
	if !issue.IsWarning() {
		t.Error("expected a warning issue")
	}
	if issue.IsError() {
		t.Error("warning should not be an error")
	}
}

func TestIssue_String(t *testing.T) {
	issue := Error(IssueTypeStructure).
		Diagnostics("missing resourceType").
		At("Patient").
		Build()

	want := "error: missing resourceType at Patient"
	if got := issue.String(); got != want {
		t.Errorf("String() = %q; want %q", got, want)
	}
}
