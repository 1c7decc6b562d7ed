package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionedValidator_NumericHistoryVersion(t *testing.T) {
	v := NewVersionedValidator(nil)

	assert.Empty(t, v.Validate("Patient/123/_history/2"))
	assert.Empty(t, v.Validate("Patient/123")) // unversioned is fine

	issues := v.Validate("Patient/123/_history/draft")
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsError())
}

func TestVersionedValidator_CanonicalSemanticVersion(t *testing.T) {
	v := NewVersionedValidator(nil)

	// Canonical versions may be semantic strings.
	assert.Empty(t, v.Validate("http://hl7.org/fhir/ValueSet/observation-status|4.0.1"))
}

func TestVersionedValidator_CheckConsistency(t *testing.T) {
	v := NewVersionedValidator(nil)

	issues := v.CheckConsistency([]string{
		"Patient/1/_history/1",
		"Patient/1/_history/2",
		"Patient/2",
	})
	require.Len(t, issues, 1)
	assert.True(t, issues[0].IsWarning())
	assert.Contains(t, issues[0].Diagnostics, "Patient/1")
}

func TestVersionedValidator_MixedVersionedUnversioned(t *testing.T) {
	v := NewVersionedValidator(nil)

	issues := v.CheckConsistency([]string{
		"Patient/1/_history/1",
		"Patient/1",
	})
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Diagnostics, "with and without")
}

func TestVersionedValidator_Convert(t *testing.T) {
	v := NewVersionedValidator(nil)

	assert.Equal(t, "Patient/1", v.ToUnversioned("Patient/1/_history/3"))
	assert.Equal(t, "Patient/1/_history/3", v.ToVersioned("Patient/1", "3"))

	// Stripping then re-adding a version reproduces the original.
	original := "Patient/1/_history/3"
	assert.Equal(t, original, v.ToVersioned(v.ToUnversioned(original), "3"))
}

func TestVersionedValidator_Latest(t *testing.T) {
	v := NewVersionedValidator(nil)

	// Numeric comparison: 10 > 9 despite string order.
	assert.Equal(t, "10", v.Latest([]string{"2", "10", "9"}))

	// String fallback when versions are not all numeric.
	assert.Equal(t, "2.0.0", v.Latest([]string{"1.0.0", "2.0.0", "1.5.0"}))

	assert.Equal(t, "", v.Latest(nil))
}
