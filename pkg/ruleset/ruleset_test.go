package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("local/personal_data/1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "local", u.Provider)
	assert.Equal(t, "personal_data", u.Name)
	assert.Equal(t, "1.0.0", u.Version.String())
	assert.Equal(t, "local/personal_data/1.0.0", u.String())
}

func TestParseURIInvalid(t *testing.T) {
	cases := []string{
		"",
		"personal_data",
		"local/personal_data",
		"local/personal_data/1.0.0/extra",
		"local//1.0.0",
		"local/personal_data/v1",
		"local/personal_data/1.0",
	}
	for _, c := range cases {
		_, err := ParseURI(c)
		assert.Error(t, err, "uri %q", c)
	}
}

func TestLoadPersonalData(t *testing.T) {
	reg := NewRegistry()
	rules, err := Load[PersonalDataRule](reg, "local/personal_data/1.0.0")
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	var email *PersonalDataRule
	for i := range rules {
		if rules[i].Name == "contact_email" {
			email = &rules[i]
		}
	}
	require.NotNil(t, email, "bundled personal_data ruleset must contain contact_email")
	assert.Contains(t, email.Patterns, "email")
	assert.Equal(t, "contact", email.Category)
	assert.NotEmpty(t, email.ValuePatterns)

	for _, r := range rules {
		assert.Contains(t, []RiskLevel{RiskLow, RiskMedium, RiskHigh}, r.RiskLevel, "rule %s", r.Name)
	}
}

func TestLoadDataSubjects(t *testing.T) {
	reg := NewRegistry()
	rules, err := Load[DataSubjectRule](reg, "local/data_subjects/1.0.0")
	require.NoError(t, err)
	require.NotEmpty(t, rules)
	for _, r := range rules {
		assert.NotEmpty(t, r.Category, "rule %s", r.Name)
	}
}

func TestLoadProcessingPurposes(t *testing.T) {
	reg := NewRegistry()
	rules, err := Load[ProcessingPurposeRule](reg, "local/processing_purposes/1.0.0")
	require.NoError(t, err)
	require.NotEmpty(t, rules)
	for _, r := range rules {
		assert.NotEmpty(t, r.Purpose, "rule %s", r.Name)
	}
}

func TestLoadUnsupportedProvider(t *testing.T) {
	reg := NewRegistry()
	_, err := Load[PersonalDataRule](reg, "remote/personal_data/1.0.0")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestLoadNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := Load[PersonalDataRule](reg, "local/personal_data/9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCachesPerNameVersion(t *testing.T) {
	reg := NewRegistry()
	first, err := Load[PersonalDataRule](reg, "local/personal_data/1.0.0")
	require.NoError(t, err)
	second, err := Load[PersonalDataRule](reg, "local/personal_data/1.0.0")
	require.NoError(t, err)
	// Same backing slice: the cache serves repeated loads.
	assert.Equal(t, &first[0], &second[0])
}

func TestLoadTypeMismatchAgainstCache(t *testing.T) {
	reg := NewRegistry()
	_, err := Load[PersonalDataRule](reg, "local/personal_data/1.0.0")
	require.NoError(t, err)
	_, err = Load[DataSubjectRule](reg, "local/personal_data/1.0.0")
	assert.Error(t, err)
}

func TestNamesListsBundled(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	assert.Contains(t, names, "local/personal_data/1.0.0")
	assert.Contains(t, names, "local/data_subjects/1.0.0")
	assert.Contains(t, names, "local/processing_purposes/1.0.0")
}
