package doctype

import (
	"errors"
	"strings"
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CompilesBuiltInProfiles(t *testing.T) {
	reg := Default()
	types := reg.Types()
	assert.Contains(t, types, domain.DocumentAadhaar)
	assert.Contains(t, types, domain.DocumentPAN)
	assert.Contains(t, types, domain.DocumentPassport)
	assert.Contains(t, types, domain.DocumentUtilityBill)
	assert.Contains(t, types, domain.DocumentPhoto)

	aadhaar, err := reg.Get(domain.DocumentAadhaar)
	require.NoError(t, err)
	assert.Equal(t, "pattern@v2", aadhaar.Strategy)
	assert.Equal(t, []domain.FieldName{
		domain.FieldFullName, domain.FieldIDNumber, domain.FieldDateOfBirth,
		domain.FieldGender, domain.FieldAddress,
	}, aadhaar.Vocabulary())
	assert.True(t, aadhaar.IsRequired(domain.FieldIDNumber))
	assert.False(t, aadhaar.IsRequired(domain.FieldGender))
	assert.True(t, aadhaar.SatisfiesCategory(domain.DocumentIDProof))
	assert.True(t, aadhaar.SatisfiesCategory(domain.DocumentAddressProof))

	id := aadhaar.Spec(domain.FieldIDNumber)
	require.NotNil(t, id)
	assert.Equal(t, ChecksumVerhoeff, id.Checksum)
	assert.InDelta(t, 0.92, id.ShortCircuitConfidence, 1e-9)
	assert.InDelta(t, aadhaar.StrictFloor, id.TargetConfidence, 1e-9)
	assert.True(t, id.Pattern.MatchString("2345 6789 0123"))
}

func TestProfile_WeightDefaults(t *testing.T) {
	reg := Default()
	idProof, err := reg.Get(domain.DocumentIDProof)
	require.NoError(t, err)

	assert.InDelta(t, DefaultRequiredWeight, idProof.Weight(domain.FieldFullName), 1e-9)
	assert.InDelta(t, DefaultOptionalWeight, idProof.Weight(domain.FieldDateOfBirth), 1e-9)
}

func TestProfile_Excluded(t *testing.T) {
	reg := Default()
	p, err := reg.Get(domain.DocumentAadhaar)
	require.NoError(t, err)

	assert.True(t, p.Excluded(0.5, 0.05), "header band")
	assert.True(t, p.Excluded(0.5, 0.97), "footer band")
	assert.False(t, p.Excluded(0.5, 0.5))
}

func TestLoad_UnknownDocumentType(t *testing.T) {
	_, err := Default().Get("LIBRARY_CARD")
	require.Error(t, err)
}

func TestLoad_MalformedRulesAreValidationRuleErrors(t *testing.T) {
	cases := map[string]string{
		"bad regex": `
document_types:
  X:
    required_fields: [id_number]
    field_patterns:
      id_number: {pattern: '(\d{4}'}
`,
		"unknown field": `
document_types:
  X:
    required_fields: [shoe_size]
`,
		"missing pattern": `
document_types:
  X:
    required_fields: [full_name]
`,
		"fallback above strict": `
document_types:
  X:
    strict_floor: 0.5
    fallback_floor: 0.6
`,
		"penalty one": `
document_types:
  X:
    required_fields: [id_number]
    field_patterns:
      id_number: {pattern: '\d+', penalty: 1.0}
`,
		"unknown checksum": `
document_types:
  X:
    required_fields: [id_number]
    field_patterns:
      id_number: {pattern: '\d+', checksum: luhn2}
`,
		"pattern outside vocabulary": `
document_types:
  X:
    required_fields: [id_number]
    field_patterns:
      id_number: {pattern: '\d+'}
      address: {pattern: '.+'}
`,
		"inverted zone": `
document_types:
  X:
    exclusion_zones:
      - {x0: 0.5, y0: 0.0, x1: 0.4, y1: 1.0}
`,
		"malformed strategy": `
document_types:
  X:
    strategy: pattern
`,
		"relaxed above strict": `
document_types:
  X:
    required_fields: [id_number]
    field_patterns:
      id_number: {pattern: '\d+', min_confidence: 0.3, relaxed_min_confidence: 0.6}
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			require.Error(t, err)
			var ruleErr *domain.ValidationRuleError
			assert.True(t, errors.As(err, &ruleErr), "got %T: %v", err, err)
		})
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader(`
document_types:
  X:
    required_feilds: [full_name]
`))
	require.Error(t, err)
}

func TestLoad_AppliesFieldDefaults(t *testing.T) {
	reg, err := Load(strings.NewReader(`
document_types:
  custom:
    strict_floor: 0.8
    fallback_floor: 0.3
    required_fields: [address]
    field_patterns:
      address: {pattern: '.+'}
`))
	require.NoError(t, err)

	p, err := reg.Get("CUSTOM")
	require.NoError(t, err)
	spec := p.Spec(domain.FieldAddress)
	require.NotNil(t, spec)
	assert.Equal(t, NormalizeText, spec.Normalize)
	assert.Equal(t, 3, spec.MaxLines)
	assert.InDelta(t, DefaultMinConfidence, spec.MinConfidence, 1e-9)
	assert.InDelta(t, DefaultMinConfidence*DefaultRelaxFactor, spec.RelaxedMinConfidence, 1e-9)
	assert.InDelta(t, 0.8, spec.TargetConfidence, 1e-9)
	assert.InDelta(t, DefaultPenalty, spec.Penalty, 1e-9)
	assert.Equal(t, []domain.DocumentType{"CUSTOM"}, p.Satisfies)
}
