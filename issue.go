package records

// Severity represents the severity of a validation issue.
// Maps to OperationOutcome.issue.severity in FHIR.
type Severity string

const (
	// SeverityFatal indicates the issue is fatal and validation cannot continue.
	SeverityFatal Severity = "fatal"
	// SeverityError indicates a validation error that causes the resource to be invalid.
	SeverityError Severity = "error"
	// SeverityWarning indicates a potential problem that should be reviewed.
	SeverityWarning Severity = "warning"
	// SeverityInformation indicates informational feedback.
	SeverityInformation Severity = "information"
)

// Aspect identifies one of the independent validation dimensions.
type Aspect string

const (
	// AspectStructural covers resource shape and required top-level elements.
	AspectStructural Aspect = "structural"
	// AspectProfile covers declared profile conformance.
	AspectProfile Aspect = "profile"
	// AspectTerminology covers code and system validation.
	AspectTerminology Aspect = "terminology"
	// AspectReference covers reference format, cycles, and existence.
	AspectReference Aspect = "reference"
	// AspectBusinessRule covers cross-field business rules.
	AspectBusinessRule Aspect = "business-rule"
	// AspectMetadata covers resource.meta content.
	AspectMetadata Aspect = "metadata"
)

// Aspects lists all validation aspects. Structural runs first in the
// pipeline; the rest share a priority group.
var Aspects = []Aspect{
	AspectStructural,
	AspectProfile,
	AspectTerminology,
	AspectReference,
	AspectBusinessRule,
	AspectMetadata,
}

// IssueType represents the type of validation issue.
// Maps to OperationOutcome.issue.code in FHIR.
type IssueType string

const (
	// IssueTypeInvalid indicates the content is invalid against the specification.
	IssueTypeInvalid IssueType = "invalid"
	// IssueTypeStructure indicates a structural issue.
	IssueTypeStructure IssueType = "structure"
	// IssueTypeRequired indicates a required element is missing.
	IssueTypeRequired IssueType = "required"
	// IssueTypeValue indicates an invalid value.
	IssueTypeValue IssueType = "value"
	// IssueTypeProcessing indicates a processing error.
	IssueTypeProcessing IssueType = "processing"
	// IssueTypeNotFound indicates a referenced resource was not found.
	IssueTypeNotFound IssueType = "not-found"
	// IssueTypeCodeInvalid indicates an invalid code.
	IssueTypeCodeInvalid IssueType = "code-invalid"
	// IssueTypeBusinessRule indicates a business rule violation.
	IssueTypeBusinessRule IssueType = "business-rule"
	// IssueTypeInformational indicates informational content.
	IssueTypeInformational IssueType = "informational"
	// IssueTypeTimeout indicates a timeout occurred.
	IssueTypeTimeout IssueType = "timeout"
	// IssueTypeNotSupported indicates the operation is not supported.
	IssueTypeNotSupported IssueType = "not-supported"
	// IssueTypeCircular indicates a circular reference chain.
	IssueTypeCircular IssueType = "circular-reference"
	// IssueTypeDuplicate indicates duplicate content.
	IssueTypeDuplicate IssueType = "duplicate"
)

// Issue represents a single validation issue.
// Issues are immutable once built.
type Issue struct {
	// Severity of the issue (fatal, error, warning, information)
	Severity Severity `json:"severity"`

	// Code identifying the type of issue
	Code IssueType `json:"code"`

	// Diagnostics contains human-readable details about the issue
	Diagnostics string `json:"diagnostics,omitempty"`

	// Expression contains FHIRPath expression(s) to the element(s) in error
	Expression []string `json:"expression,omitempty"`

	// Location contains the path segments to the element in error
	Location []string `json:"location,omitempty"`

	// Aspect is the validation aspect that generated this issue
	Aspect Aspect `json:"aspect,omitempty"`
}

// IsError returns true if this is an error or fatal issue.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// IsWarning returns true if this is a warning.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	path := ""
	if len(i.Expression) > 0 {
		path = " at " + i.Expression[0]
	}
	return string(i.Severity) + ": " + i.Diagnostics + path
}

// IssueBuilder provides a fluent API for building issues.
type IssueBuilder struct {
	issue Issue
}

// NewIssue creates a new IssueBuilder.
func NewIssue(severity Severity, code IssueType) *IssueBuilder {
	return &IssueBuilder{
		issue: Issue{
			Severity: severity,
			Code:     code,
		},
	}
}

// Error creates an error issue.
func Error(code IssueType) *IssueBuilder {
	return NewIssue(SeverityError, code)
}

// Warning creates a warning issue.
func Warning(code IssueType) *IssueBuilder {
	return NewIssue(SeverityWarning, code)
}

// Info creates an informational issue.
func Info(code IssueType) *IssueBuilder {
	return NewIssue(SeverityInformation, code)
}

// Diagnostics sets the diagnostic message.
func (b *IssueBuilder) Diagnostics(msg string) *IssueBuilder {
	b.issue.Diagnostics = msg
	return b
}

// At sets the expression path.
func (b *IssueBuilder) At(path string) *IssueBuilder {
	b.issue.Expression = []string{path}
	return b
}

// AtPaths sets multiple expression paths.
func (b *IssueBuilder) AtPaths(paths ...string) *IssueBuilder {
	b.issue.Expression = paths
	return b
}

// Segments sets the location path segments.
func (b *IssueBuilder) Segments(segments ...string) *IssueBuilder {
	b.issue.Location = segments
	return b
}

// Aspect sets the validation aspect.
func (b *IssueBuilder) Aspect(aspect Aspect) *IssueBuilder {
	b.issue.Aspect = aspect
	return b
}

// Build returns the constructed issue.
func (b *IssueBuilder) Build() Issue {
	return b.issue
}
