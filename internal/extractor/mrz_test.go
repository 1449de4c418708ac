package extractor

import (
	"strings"
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMRZCheckDigit(t *testing.T) {
	assert.Equal(t, 4, MRZCheckDigit("J8369854<"))
	assert.Equal(t, 3, MRZCheckDigit("900512"))
	assert.Equal(t, 5, MRZCheckDigit("320101"))
	assert.Equal(t, -1, MRZCheckDigit("ab"))

	assert.True(t, CheckDigitValid("J8369854<4"))
	assert.False(t, CheckDigitValid("J8369854<5"))
	assert.False(t, CheckDigitValid("900512<"))
	assert.False(t, CheckDigitValid("4"))
}

func TestFindMRZ(t *testing.T) {
	zone, ok := FindMRZ(GroupLines(recognized(testutil.PassportTokens())), false)
	require.True(t, ok)

	assert.True(t, zone.CompositeValid())
	surname, given := zone.Names()
	assert.Equal(t, "KUMAR", surname)
	assert.Equal(t, "RAVI", given)

	tests := []struct {
		field      domain.FieldName
		raw        string
		normalized string
	}{
		{domain.FieldFullName, "RAVI KUMAR", "Ravi Kumar"},
		{domain.FieldIDNumber, "J8369854<4", testutil.PassportNumber},
		{domain.FieldDateOfBirth, "9005123", "1990-05-12"},
		{domain.FieldExpiryDate, "3201015", "2032-01-01"},
		{domain.FieldNationality, "IND", "IND"},
		{domain.FieldGender, "M", "MALE"},
	}
	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			raw, normalized, ok := zone.Field(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.raw, raw)
			assert.Equal(t, tt.normalized, normalized)
		})
	}

	_, _, ok = zone.Field(domain.FieldAddress)
	assert.False(t, ok)
}

func TestFindMRZ_RelaxedAcceptsShortLines(t *testing.T) {
	short := testutil.MRZLine2[:41]
	lines := GroupLines(recognized([]recognizer.EngineToken{
		testutil.Token(testutil.MRZLine1, 30, 520, 940, 34, 0.8),
		testutil.Token(short, 30, 570, 900, 34, 0.8),
	}))

	_, ok := FindMRZ(lines, false)
	assert.False(t, ok)

	zone, ok := FindMRZ(lines, true)
	require.True(t, ok)
	assert.Len(t, zone.Line2, 44)
	assert.False(t, zone.CompositeValid())
}

func TestFindMRZ_RelaxedRepairsDigits(t *testing.T) {
	garbled := strings.Replace(testutil.MRZLine2, "9005123", "9OO5I23", 1)
	lines := GroupLines(recognized([]recognizer.EngineToken{
		testutil.Token(testutil.MRZLine1, 30, 520, 940, 34, 0.8),
		testutil.Token(garbled, 30, 570, 940, 34, 0.8),
	}))

	zone, ok := FindMRZ(lines, true)
	require.True(t, ok)
	raw, normalized, _ := zone.Field(domain.FieldDateOfBirth)
	assert.Equal(t, "9005123", raw)
	assert.Equal(t, "1990-05-12", normalized)
}

func TestMRZStrategy_Candidates(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentPassport, domain.FieldIDNumber)
	s := &MRZStrategy{Visual: &PatternStrategy{}}

	cands := s.Candidates(profile, spec, cardPage(testutil.PassportTokens()), DefaultConfig().Params(false))
	require.Len(t, cands, 1)
	assert.Equal(t, "J8369854<4", cands[0].RawValue)
	assert.Equal(t, testutil.PassportNumber, cands[0].NormalizedValue)
	assert.InDelta(t, 0.96, cands[0].Confidence, 1e-9)
	assert.InDelta(t, 1.0, cands[0].MatchStrength, 1e-9)
}

func TestMRZStrategy_FallsBackToVisual(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentPassport, domain.FieldIDNumber)
	tokens := []recognizer.EngineToken{testutil.Token("Passport No. "+testutil.PassportNumber, 500, 100, 300, 30, 0.9)}

	visual := (&MRZStrategy{Visual: &PatternStrategy{}}).Candidates(profile, spec, cardPage(tokens), DefaultConfig().Params(false))
	c, ok := findCandidate(visual, testutil.PassportNumber)
	require.True(t, ok)
	assert.Equal(t, testutil.PassportNumber, c.NormalizedValue)

	assert.Empty(t, (&MRZStrategy{}).Candidates(profile, spec, cardPage(tokens), DefaultConfig().Params(false)))
}
