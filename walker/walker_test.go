package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReferences_Simple(t *testing.T) {
	resource := map[string]any{
		"resourceType": "Patient",
		"id":           "123",
		"managingOrganization": map[string]any{
			"reference": "Organization/999",
		},
	}

	refs := ExtractReferences(resource)
	require.Len(t, refs, 1)
	assert.Equal(t, "Organization/999", refs[0].Reference)
	assert.Equal(t, "Patient.managingOrganization.reference", refs[0].Path)
}

func TestExtractReferences_NestedAndArrays(t *testing.T) {
	resource := map[string]any{
		"resourceType": "Observation",
		"subject":      map[string]any{"reference": "Patient/1"},
		"performer": []any{
			map[string]any{"reference": "Practitioner/2"},
			map[string]any{"reference": "Organization/3"},
		},
		"component": []any{
			map[string]any{
				"extension": []any{
					map[string]any{
						"valueReference": map[string]any{"reference": "Device/4"},
					},
				},
			},
		},
	}

	refs := ExtractReferences(resource)
	got := make(map[string]bool, len(refs))
	for _, r := range refs {
		got[r.Reference] = true
	}

	for _, want := range []string{"Patient/1", "Practitioner/2", "Organization/3", "Device/4"} {
		assert.True(t, got[want], "missing %s", want)
	}
}

func TestExtractReferences_ExcludesRootContained(t *testing.T) {
	resource := map[string]any{
		"resourceType": "MedicationRequest",
		"contained": []any{
			map[string]any{
				"resourceType": "Medication",
				"id":           "med1",
				"manufacturer": map[string]any{"reference": "Organization/55"},
			},
		},
		"medicationReference": map[string]any{"reference": "#med1"},
	}

	refs := ExtractReferences(resource)
	require.Len(t, refs, 1)
	assert.Equal(t, "#med1", refs[0].Reference)
}

func TestExtractFromContained(t *testing.T) {
	contained := map[string]any{
		"resourceType": "Medication",
		"manufacturer": map[string]any{"reference": "Organization/55"},
	}

	refs := ExtractFromContained(contained, 0)
	require.Len(t, refs, 1)
	assert.Equal(t, "Organization/55", refs[0].Reference)
	assert.Equal(t, "contained[0].manufacturer.reference", refs[0].Path)
}

func TestExtractFromBundle(t *testing.T) {
	bundle := map[string]any{
		"resourceType": "Bundle",
		"entry": []any{
			map[string]any{
				"fullUrl": "urn:uuid:a",
				"resource": map[string]any{
					"resourceType": "Patient",
					"generalPractitioner": []any{
						map[string]any{"reference": "Practitioner/9"},
					},
				},
			},
			map[string]any{
				"resource": map[string]any{
					"resourceType": "Observation",
					"subject":      map[string]any{"reference": "urn:uuid:a"},
				},
			},
		},
	}

	byEntry := ExtractFromBundle(bundle)
	require.Len(t, byEntry, 2)
	require.Len(t, byEntry[0], 1)
	assert.Equal(t, "Practitioner/9", byEntry[0][0].Reference)
	assert.Contains(t, byEntry[0][0].Path, "Bundle.entry[0].resource.")
	require.Len(t, byEntry[1], 1)
	assert.Equal(t, "urn:uuid:a", byEntry[1][0].Reference)
}

func TestExtractReferences_EmptyAndNil(t *testing.T) {
	assert.Nil(t, ExtractReferences(nil))
	assert.Empty(t, ExtractReferences(map[string]any{"resourceType": "Patient"}))
}
