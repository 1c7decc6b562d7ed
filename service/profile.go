// Package service defines the small, composable interfaces the
// validation aspects depend on, together with the internal shapes
// those interfaces exchange. Each interface carries one or two
// methods; aspects compose exactly the capabilities they need.
package service

import (
	"context"
)

// StructureDefinition is the internal representation of a FHIR
// StructureDefinition, reduced to what validation needs.
type StructureDefinition struct {
	URL            string
	Version        string
	Name           string
	Type           string
	Kind           string
	Abstract       bool
	BaseDefinition string
	FHIRVersion    string
	Snapshot       []ElementDefinition
	Differential   []ElementDefinition
}

// ElementDefinition is one element of a profile snapshot.
type ElementDefinition struct {
	ID          string
	Path        string
	Min         int
	Max         string
	Types       []TypeRef
	Fixed       any
	Pattern     any
	Binding     *Binding
	Constraints []Constraint
	MustSupport bool
	IsModifier  bool
}

// TypeRef is a type entry of an ElementDefinition.
type TypeRef struct {
	Code          string
	Profile       []string
	TargetProfile []string
}

// Binding ties an element to a ValueSet.
type Binding struct {
	Strength    string
	ValueSet    string
	Description string
}

// Constraint is a FHIRPath invariant attached to an element.
type Constraint struct {
	Key        string
	Severity   string
	Human      string
	Expression string
}

// StructureDefinitionFetcher fetches profiles by canonical URL.
type StructureDefinitionFetcher interface {
	FetchStructureDefinition(ctx context.Context, url string) (*StructureDefinition, error)
}

// StructureDefinitionByTypeFetcher fetches the base profile for a
// resource type.
type StructureDefinitionByTypeFetcher interface {
	FetchStructureDefinitionByType(ctx context.Context, resourceType string) (*StructureDefinition, error)
}

// ProfileResolver resolves profiles both ways. This is what the
// profile aspect consumes.
type ProfileResolver interface {
	StructureDefinitionFetcher
	StructureDefinitionByTypeFetcher
}

// ProfileCache caches resolved profiles.
type ProfileCache interface {
	Get(url string) (*StructureDefinition, bool)
	Set(url string, profile *StructureDefinition)
}
