package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containedParent() map[string]any {
	return map[string]any{
		"resourceType": "MedicationRequest",
		"id":           "mr1",
		"contained": []any{
			map[string]any{
				"resourceType": "Medication",
				"id":           "med1",
			},
		},
		"medicationReference": map[string]any{"reference": "#med1"},
	}
}

func TestContainedResolver_Resolve(t *testing.T) {
	r := NewContainedResolver()

	resource := r.Resolve(containedParent(), "#med1")
	require.NotNil(t, resource)
	assert.Equal(t, "Medication", resource["resourceType"])

	assert.Nil(t, r.Resolve(containedParent(), "#missing"))
	assert.Nil(t, r.Resolve(containedParent(), "Patient/1"))
	assert.Nil(t, r.Resolve(nil, "#med1"))
}

func TestContainedResolver_ValidateReference_TypeConstraint(t *testing.T) {
	r := NewContainedResolver()
	parent := containedParent()

	assert.Empty(t, r.ValidateReference(parent, "#med1", "MedicationRequest.medicationReference", []string{"Medication"}))

	issues := r.ValidateReference(parent, "#med1", "MedicationRequest.medicationReference", []string{"Substance"})
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsError())
	assert.Contains(t, issues[0].Diagnostics, "Medication")
}

func TestContainedResolver_Validate_Dangling(t *testing.T) {
	r := NewContainedResolver()
	parent := containedParent()
	parent["supportingInformation"] = []any{
		map[string]any{"reference": "#ghost"},
	}

	issues := r.Validate(parent)
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsError())
	assert.Contains(t, issues[0].Diagnostics, "#ghost")
}

func TestContainedResolver_Validate_Orphan(t *testing.T) {
	r := NewContainedResolver()
	parent := containedParent()
	contained := parent["contained"].([]any)
	parent["contained"] = append(contained, map[string]any{
		"resourceType": "Practitioner",
		"id":           "unused",
	})

	issues := r.Validate(parent)
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsWarning())
	assert.Contains(t, issues[0].Diagnostics, "unused")
}

func TestContainedResolver_Validate_MissingID(t *testing.T) {
	r := NewContainedResolver()
	parent := map[string]any{
		"resourceType": "MedicationRequest",
		"contained": []any{
			map[string]any{"resourceType": "Medication"},
		},
	}

	issues := r.Validate(parent)
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsError())
	assert.Contains(t, issues[0].Diagnostics, "no id")
}

func TestContainedResolver_Validate_SiblingReference(t *testing.T) {
	r := NewContainedResolver()
	parent := map[string]any{
		"resourceType": "MedicationRequest",
		"contained": []any{
			map[string]any{
				"resourceType": "Medication",
				"id":           "med1",
				"manufacturer": map[string]any{"reference": "#org1"},
			},
			map[string]any{
				"resourceType": "Organization",
				"id":           "org1",
			},
		},
		"medicationReference": map[string]any{"reference": "#med1"},
	}

	// org1 is referenced by its sibling, so nothing is orphaned.
	assert.Empty(t, r.Validate(parent))
}
