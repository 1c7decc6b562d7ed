package service

import (
	"context"
)

// Coding is a FHIR Coding datatype.
type Coding struct {
	System       string
	Version      string
	Code         string
	Display      string
	UserSelected bool
}

// CodeableConcept is a FHIR CodeableConcept datatype.
type CodeableConcept struct {
	Coding []Coding
	Text   string
}

// ValidateCodeResult is the outcome of validating a code against a
// ValueSet.
type ValidateCodeResult struct {
	Valid   bool
	Message string
	Display string
	Code    string
	System  string
}

// ValueSetExpansion is an expanded ValueSet.
type ValueSetExpansion struct {
	URL      string
	Version  string
	Total    int
	Contains []ValueSetContains
}

// ValueSetContains is one item of an expansion.
type ValueSetContains struct {
	System   string
	Version  string
	Code     string
	Display  string
	Abstract bool
	Inactive bool
	Contains []ValueSetContains
}

// CodeValidator validates codes against ValueSets.
type CodeValidator interface {
	ValidateCode(ctx context.Context, system, code, valueSetURL string) (*ValidateCodeResult, error)
}

// CodingValidator validates whole Coding values.
type CodingValidator interface {
	ValidateCoding(ctx context.Context, coding *Coding, valueSetURL string) (*ValidateCodeResult, error)
}

// ValueSetExpander expands ValueSets.
type ValueSetExpander interface {
	ExpandValueSet(ctx context.Context, url string) (*ValueSetExpansion, error)
}

// TerminologyService is what the terminology aspect consumes.
type TerminologyService interface {
	CodeValidator
	ValueSetExpander
}

// TerminologyCache caches terminology lookups.
type TerminologyCache interface {
	GetValidation(key string) (*ValidateCodeResult, bool)
	SetValidation(key string, result *ValidateCodeResult)
}
