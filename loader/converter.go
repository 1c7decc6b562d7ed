// Package loader turns FHIR R4 StructureDefinitions into the internal
// profile shapes and serves them to the profile aspect, from memory or
// over HTTP.
package loader

import (
	"github.com/gofhir/fhir/r4"

	"github.com/medvertical/records/service"
)

// R4Converter maps r4 model types onto the internal service shapes.
type R4Converter struct{}

// NewR4Converter creates a converter.
func NewR4Converter() *R4Converter {
	return &R4Converter{}
}

// ConvertStructureDefinition converts an r4.StructureDefinition.
// Returns nil for nil input.
func (c *R4Converter) ConvertStructureDefinition(sd *r4.StructureDefinition) *service.StructureDefinition {
	if sd == nil {
		return nil
	}

	result := &service.StructureDefinition{
		URL:            derefString(sd.Url),
		Version:        derefString(sd.Version),
		Name:           derefString(sd.Name),
		Type:           derefString(sd.Type),
		Kind:           c.convertKind(sd.Kind),
		Abstract:       derefBool(sd.Abstract),
		BaseDefinition: derefString(sd.BaseDefinition),
		FHIRVersion:    c.convertFHIRVersion(sd.FhirVersion),
	}

	if sd.Snapshot != nil {
		result.Snapshot = c.convertElements(sd.Snapshot.Element)
	}
	if sd.Differential != nil {
		result.Differential = c.convertElements(sd.Differential.Element)
	}
	return result
}

func (c *R4Converter) convertElements(elements []r4.ElementDefinition) []service.ElementDefinition {
	if len(elements) == 0 {
		return nil
	}
	result := make([]service.ElementDefinition, 0, len(elements))
	for i := range elements {
		result = append(result, c.convertElement(&elements[i]))
	}
	return result
}

func (c *R4Converter) convertElement(ed *r4.ElementDefinition) service.ElementDefinition {
	return service.ElementDefinition{
		ID:          derefString(ed.Id),
		Path:        derefString(ed.Path),
		Min:         convertMin(ed.Min),
		Max:         derefString(ed.Max),
		Types:       c.convertTypes(ed.Type),
		Binding:     c.convertBinding(ed.Binding),
		Constraints: c.convertConstraints(ed.Constraint),
		MustSupport: derefBool(ed.MustSupport),
		IsModifier:  derefBool(ed.IsModifier),
		Fixed:       c.extractFixedValue(ed),
		Pattern:     c.extractPatternValue(ed),
	}
}

func (c *R4Converter) convertTypes(types []r4.ElementDefinitionType) []service.TypeRef {
	if len(types) == 0 {
		return nil
	}
	result := make([]service.TypeRef, 0, len(types))
	for i := range types {
		t := &types[i]
		result = append(result, service.TypeRef{
			Code:          derefString(t.Code),
			Profile:       t.Profile,
			TargetProfile: t.TargetProfile,
		})
	}
	return result
}

func (c *R4Converter) convertBinding(binding *r4.ElementDefinitionBinding) *service.Binding {
	if binding == nil {
		return nil
	}
	return &service.Binding{
		Strength:    c.convertBindingStrength(binding.Strength),
		ValueSet:    derefString(binding.ValueSet),
		Description: derefString(binding.Description),
	}
}

func (c *R4Converter) convertConstraints(constraints []r4.ElementDefinitionConstraint) []service.Constraint {
	if len(constraints) == 0 {
		return nil
	}
	result := make([]service.Constraint, 0, len(constraints))
	for i := range constraints {
		con := &constraints[i]
		result = append(result, service.Constraint{
			Key:        derefString(con.Key),
			Severity:   c.convertConstraintSeverity(con.Severity),
			Human:      derefString(con.Human),
			Expression: derefString(con.Expression),
		})
	}
	return result
}

func (c *R4Converter) convertKind(kind *r4.StructureDefinitionKind) string {
	if kind == nil {
		return ""
	}
	return string(*kind)
}

func (c *R4Converter) convertFHIRVersion(version *r4.FHIRVersion) string {
	if version == nil {
		return ""
	}
	return string(*version)
}

func (c *R4Converter) convertBindingStrength(strength *r4.BindingStrength) string {
	if strength == nil {
		return ""
	}
	return string(*strength)
}

func (c *R4Converter) convertConstraintSeverity(severity *r4.ConstraintSeverity) string {
	if severity == nil {
		return ""
	}
	return string(*severity)
}

func convertMin(minVal *uint32) int {
	if minVal == nil {
		return 0
	}
	return int(*minVal)
}

// extractFixedValue pulls the fixed[x] value off an element, nil when
// none is set.
func (c *R4Converter) extractFixedValue(ed *r4.ElementDefinition) any {
	return firstPolymorphic(
		ed.FixedString, ed.FixedBoolean, ed.FixedInteger, ed.FixedDecimal,
		ed.FixedCode, ed.FixedUri, ed.FixedUrl, ed.FixedCanonical,
	)
}

// extractPatternValue pulls the pattern[x] value off an element.
func (c *R4Converter) extractPatternValue(ed *r4.ElementDefinition) any {
	return firstPolymorphic(
		ed.PatternString, ed.PatternBoolean, ed.PatternInteger, ed.PatternDecimal,
		ed.PatternCode, ed.PatternUri, ed.PatternUrl, ed.PatternCanonical,
	)
}

// firstPolymorphic returns the first non-nil choice of a [x] element.
func firstPolymorphic(s, b, i, d, code, uri, url, canonical any) any {
	for _, v := range []any{s, b, i, d, code, uri, url, canonical} {
		switch p := v.(type) {
		case *string:
			if p != nil {
				return *p
			}
		case *bool:
			if p != nil {
				return *p
			}
		case *int:
			if p != nil {
				return *p
			}
		case *float64:
			if p != nil {
				return *p
			}
		}
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
