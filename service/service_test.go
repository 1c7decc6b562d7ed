package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFHIRPathAdapter_Evaluate(t *testing.T) {
	a := NewFHIRPathAdapter()
	resource := map[string]any{
		"resourceType": "Patient",
		"name":         []any{map[string]any{"family": "Chalmers"}},
	}

	ok, err := a.Evaluate(context.Background(), "name.exists()", resource)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Evaluate(context.Background(), "birthDate.exists()", resource)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFHIRPathAdapter_CachesCompiledExpressions(t *testing.T) {
	a := NewFHIRPathAdapter()
	resource := map[string]any{"resourceType": "Patient"}

	_, err := a.Evaluate(context.Background(), "resourceType = 'Patient'", resource)
	require.NoError(t, err)
	_, err = a.Evaluate(context.Background(), "resourceType = 'Patient'", resource)
	require.NoError(t, err)

	assert.Equal(t, 1, a.CacheSize())
}

func TestFHIRPathAdapter_CompileError(t *testing.T) {
	a := NewFHIRPathAdapter()

	_, err := a.Evaluate(context.Background(), "name.where(", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile")
}

type fakeDefinitionFetcher struct {
	sd  *StructureDefinition
	err error
}

func (f *fakeDefinitionFetcher) FetchStructureDefinition(ctx context.Context, url string) (*StructureDefinition, error) {
	return f.sd, f.err
}

func TestCanonicalBridge(t *testing.T) {
	bridge := &CanonicalBridge{Resolver: &fakeDefinitionFetcher{
		sd: &StructureDefinition{
			URL:     "http://example.org/StructureDefinition/blood-pressure",
			Version: "2.0.0",
		},
	}}

	resource, err := bridge.FetchCanonical(context.Background(), "http://example.org/StructureDefinition/blood-pressure")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", resource.Version)
	assert.Equal(t, "StructureDefinition", resource.ResourceType)

	bridge.Resolver = &fakeDefinitionFetcher{err: errors.New("not found")}
	_, err = bridge.FetchCanonical(context.Background(), "http://example.org/missing")
	assert.Error(t, err)
}
