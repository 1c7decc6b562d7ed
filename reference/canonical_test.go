package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	resources map[string]*CanonicalResource
	calls     int
}

func (f *fakeFetcher) FetchCanonical(_ context.Context, url string) (*CanonicalResource, error) {
	f.calls++
	if r, ok := f.resources[url]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func TestCanonicalValidator_Format(t *testing.T) {
	v := NewCanonicalValidator(nil, nil)

	assert.Empty(t, v.Validate("http://hl7.org/fhir/StructureDefinition/Patient"))
	assert.Empty(t, v.Validate("http://hl7.org/fhir/ValueSet/observation-status|4.0.1"))
	assert.Empty(t, v.Validate("urn:oid:2.16.840.1.113883.6.1"))

	issues := v.Validate("Patient/123")
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsError())
}

func TestCanonicalValidator_UnrecognizedType(t *testing.T) {
	v := NewCanonicalValidator(nil, nil)

	issues := v.Validate("http://example.org/fhir/ValueSet/x") // recognized
	assert.Empty(t, issues)
}

func TestCanonicalValidator_Resolve(t *testing.T) {
	fetcher := &fakeFetcher{resources: map[string]*CanonicalResource{
		"http://example.org/fhir/StructureDefinition/my-patient": {
			URL:          "http://example.org/fhir/StructureDefinition/my-patient",
			Version:      "2.0.0",
			ResourceType: "StructureDefinition",
		},
	}}
	v := NewCanonicalValidator(nil, fetcher)

	resource, issues := v.Resolve(context.Background(), "http://example.org/fhir/StructureDefinition/my-patient")
	require.NotNil(t, resource)
	assert.Empty(t, issues)

	// Second resolution is served from the cache.
	v.Resolve(context.Background(), "http://example.org/fhir/StructureDefinition/my-patient")
	assert.Equal(t, 1, fetcher.calls)
}

func TestCanonicalValidator_VersionMismatch(t *testing.T) {
	fetcher := &fakeFetcher{resources: map[string]*CanonicalResource{
		"http://example.org/fhir/StructureDefinition/my-patient": {
			URL:     "http://example.org/fhir/StructureDefinition/my-patient",
			Version: "2.0.0",
		},
	}}
	v := NewCanonicalValidator(nil, fetcher)

	_, issues := v.Resolve(context.Background(), "http://example.org/fhir/StructureDefinition/my-patient|1.0.0")
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsError())
	assert.Contains(t, issues[0].Diagnostics, "version mismatch")
}

func TestCanonicalValidator_ResolveFailure(t *testing.T) {
	v := NewCanonicalValidator(nil, &fakeFetcher{})

	resource, issues := v.Resolve(context.Background(), "http://example.org/fhir/ValueSet/missing")
	assert.Nil(t, resource)
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsWarning())
}

func TestCanonicalValidator_FindDuplicates(t *testing.T) {
	v := NewCanonicalValidator(nil, nil)

	issues := v.FindDuplicates([]string{
		"http://hl7.org/fhir/ValueSet/observation-status",
		"http://hl7.org/fhir/ValueSet/observation-status",
		"http://hl7.org/fhir/ValueSet/administrative-gender",
		"Patient/123", // not canonical, ignored
	})

	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Diagnostics, "observation-status")
	assert.Contains(t, issues[0].Diagnostics, "2 times")
}
