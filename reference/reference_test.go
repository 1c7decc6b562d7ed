package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Relative(t *testing.T) {
	p := Parse("Patient/123")

	require.True(t, p.IsValid)
	assert.Equal(t, KindRelative, p.Kind)
	assert.Equal(t, "Patient", p.ResourceType)
	assert.Equal(t, "123", p.ResourceID)
	assert.Empty(t, p.VersionID)
}

func TestParse_RelativeWithHistory(t *testing.T) {
	p := Parse("Observation/abc-1/_history/3")

	require.True(t, p.IsValid)
	assert.Equal(t, KindRelative, p.Kind)
	assert.Equal(t, "Observation", p.ResourceType)
	assert.Equal(t, "abc-1", p.ResourceID)
	assert.Equal(t, "3", p.VersionID)
}

func TestParse_Absolute(t *testing.T) {
	p := Parse("https://server.example.org/fhir/Patient/123")

	require.True(t, p.IsValid)
	assert.Equal(t, KindAbsolute, p.Kind)
	assert.Equal(t, "Patient", p.ResourceType)
	assert.Equal(t, "123", p.ResourceID)
	assert.Equal(t, "https://server.example.org/fhir", p.BaseURL)
}

func TestParse_AbsoluteWithoutFHIRSegment(t *testing.T) {
	p := Parse("http://example.org/api/Patient/123/_history/2")

	require.True(t, p.IsValid)
	assert.Equal(t, KindAbsolute, p.Kind)
	assert.Equal(t, "Patient", p.ResourceType)
	assert.Equal(t, "123", p.ResourceID)
	assert.Equal(t, "2", p.VersionID)
}

func TestParse_Canonical(t *testing.T) {
	p := Parse("http://hl7.org/fhir/StructureDefinition/Patient")

	require.True(t, p.IsValid)
	assert.Equal(t, KindCanonical, p.Kind)
	assert.Equal(t, "StructureDefinition", p.ResourceType)
	assert.Equal(t, "http://hl7.org/fhir/StructureDefinition/Patient", p.CanonicalURL)
}

func TestParse_CanonicalWithVersion(t *testing.T) {
	p := Parse("http://hl7.org/fhir/ValueSet/observation-status|4.0.1")

	require.True(t, p.IsValid)
	assert.Equal(t, KindCanonical, p.Kind)
	assert.Equal(t, "ValueSet", p.ResourceType)
	assert.Equal(t, "4.0.1", p.VersionID)
	assert.Equal(t, "http://hl7.org/fhir/ValueSet/observation-status", p.CanonicalURL)
}

func TestParse_Contained(t *testing.T) {
	p := Parse("#med1")

	require.True(t, p.IsValid)
	assert.Equal(t, KindContained, p.Kind)
	assert.Equal(t, "med1", p.ResourceID)
	// Contained references carry no resource type.
	assert.Empty(t, p.ResourceType)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"empty", ""},
		{"fragment only", "#"},
		{"lowercase type", "patient/123"},
		{"missing id", "Patient/"},
		{"too many segments", "Patient/1/2"},
		{"unknown type strict", "Frobnicator/1"},
		{"bare word", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.ref)
			assert.False(t, p.IsValid)
			assert.Equal(t, KindInvalid, p.Kind)
			assert.NotEmpty(t, p.Reason)
		})
	}
}

func TestParse_LenientTypes(t *testing.T) {
	lenient := NewParser(ParserOptions{StrictTypes: false})

	p := lenient.Parse("Frobnicator/1")
	require.True(t, p.IsValid)
	assert.Equal(t, "Frobnicator", p.ResourceType)

	// Lowercase still fails: the UpperCamel form is structural.
	assert.False(t, lenient.Parse("frobnicator/1").IsValid)
}

func TestParse_CustomKnownTypes(t *testing.T) {
	p := NewParser(ParserOptions{
		StrictTypes: true,
		KnownTypes:  map[string]bool{"Widget": true},
	})

	assert.True(t, p.Parse("Widget/1").IsValid)
	assert.False(t, p.Parse("Patient/1").IsValid)
}

// Parsing then reconstructing a valid reference reproduces the input.
func TestParse_RoundTrip(t *testing.T) {
	refs := []string{
		"Patient/123",
		"Observation/abc-1/_history/3",
		"https://server.example.org/fhir/Patient/123",
		"https://server.example.org/fhir/Patient/123/_history/7",
		"http://hl7.org/fhir/StructureDefinition/Patient",
		"http://hl7.org/fhir/ValueSet/observation-status|4.0.1",
		"#med1",
	}

	for _, ref := range refs {
		p := Parse(ref)
		require.True(t, p.IsValid, "parse %q", ref)
		assert.Equal(t, ref, p.String(), "round-trip %q", ref)
	}
}
