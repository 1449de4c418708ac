package extractor

import (
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardPage(tokens []recognizer.EngineToken) Page {
	return Page{
		Variant: "source",
		Recipe:  "source",
		Tokens:  recognized(tokens),
		Width:   testutil.CardWidth,
		Height:  testutil.CardHeight,
	}
}

func profileSpec(t *testing.T, dt domain.DocumentType, f domain.FieldName) (*doctype.Profile, *doctype.FieldSpec) {
	t.Helper()
	p, err := doctype.Default().Get(dt)
	require.NoError(t, err)
	spec := p.Spec(f)
	require.NotNil(t, spec)
	return p, spec
}

func findCandidate(cands []Candidate, raw string) (Candidate, bool) {
	for _, c := range cands {
		if c.RawValue == raw {
			return c, true
		}
	}
	return Candidate{}, false
}

func TestPatternStrategy_AadhaarNumberIsPositional(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentAadhaar, domain.FieldIDNumber)
	cands := (&PatternStrategy{}).Candidates(profile, spec, cardPage(testutil.AadhaarTokens()), DefaultConfig().Params(false))

	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, "2345 6789 0124", c.RawValue)
	assert.Equal(t, testutil.ValidAadhaar, c.NormalizedValue)
	assert.Equal(t, domain.MethodPositional, c.Method)
	assert.InDelta(t, 0.97*0.9, c.Confidence, 1e-9)
	assert.InDelta(t, 0.97, c.RecognitionConfidence, 1e-9)
	assert.InDelta(t, 0.9, c.MatchStrength, 1e-9)
}

func TestPatternStrategy_LabeledDate(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentAadhaar, domain.FieldDateOfBirth)
	cands := (&PatternStrategy{}).Candidates(profile, spec, cardPage(testutil.AadhaarTokens()), DefaultConfig().Params(false))

	c, ok := findCandidate(cands, "12/05/1990")
	require.True(t, ok)
	assert.Equal(t, "1990-05-12", c.NormalizedValue)
	assert.Equal(t, domain.MethodPatternMatch, c.Method)
	assert.InDelta(t, 1.0, c.MatchStrength, 1e-9)
}

func TestPatternStrategy_LabelOnLineAbove(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentPAN, domain.FieldIDNumber)
	cands := (&PatternStrategy{}).Candidates(profile, spec, cardPage(testutil.PANTokens()), DefaultConfig().Params(false))

	c, ok := findCandidate(cands, testutil.ValidPAN)
	require.True(t, ok)
	assert.Equal(t, domain.MethodPatternMatch, c.Method)
	assert.InDelta(t, 0.97, c.Confidence, 1e-9)
}

func TestPatternStrategy_ZonePrefersExpectedPosition(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentPAN, domain.FieldFatherName)
	cands := (&PatternStrategy{}).Candidates(profile, spec, cardPage(testutil.PANTokens()), DefaultConfig().Params(false))

	father, ok := findCandidate(cands, "SURESH KUMAR")
	require.True(t, ok)
	self, ok := findCandidate(cands, "RAVI KUMAR")
	require.True(t, ok)
	assert.Greater(t, father.Score, self.Score)
	assert.Greater(t, self.Confidence, father.Confidence)
}

func TestPatternStrategy_ExclusionZones(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentAadhaar, domain.FieldFullName)
	page := cardPage(testutil.AadhaarTokens())

	strict := (&PatternStrategy{}).Candidates(profile, spec, page, DefaultConfig().Params(false))
	_, ok := findCandidate(strict, "Aam Aadmi ka Adhikar")
	assert.False(t, ok, "footer text must be dropped in strict mode")
	name, ok := findCandidate(strict, "RAVI KUMAR")
	require.True(t, ok)
	assert.Equal(t, "Ravi Kumar", name.NormalizedValue)

	relaxed := (&PatternStrategy{}).Candidates(profile, spec, page, DefaultConfig().Params(true))
	footer, ok := findCandidate(relaxed, "Aam Aadmi ka Adhikar")
	require.True(t, ok)
	params := DefaultConfig().Params(true)
	assert.InDelta(t, 1.0, footer.MatchStrength, 1e-9)
	assert.InDelta(t, 0.9, footer.Confidence, 1e-9, "exclusion zones only affect ranking")
	assert.InDelta(t, params.Score(0.9, 1, params.ExclusionPenalty*params.OutsideZoneBias), footer.Score, 1e-9)
}

func TestPatternStrategy_ExcludedWords(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentPAN, domain.FieldFullName)
	cands := (&PatternStrategy{}).Candidates(profile, spec, cardPage(testutil.PANTokens()), DefaultConfig().Params(true))

	_, ok := findCandidate(cands, "RAVI KUMAR")
	assert.True(t, ok)
	for _, c := range cands {
		assert.NotContains(t, c.RawValue, "INCOME")
		assert.NotContains(t, c.RawValue, "Permanent")
	}
}

func TestPatternStrategy_MultiLineAddress(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentUtilityBill, domain.FieldAddress)
	cands := (&PatternStrategy{}).Candidates(profile, spec, cardPage(testutil.UtilityBillTokens()), DefaultConfig().Params(false))

	var best *Candidate
	for i := range cands {
		if best == nil || better(cands[i], *best) {
			best = &cands[i]
		}
	}
	require.NotNil(t, best)
	assert.Equal(t, "12 MG Road, Indiranagar, Bengaluru, Karnataka 560038", best.NormalizedValue)
	assert.Equal(t, domain.MethodPatternMatch, best.Method)
}

func TestPatternStrategy_PartialOnlyWhenRelaxed(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentAadhaar, domain.FieldIDNumber)
	tokens := []recognizer.EngineToken{testutil.Token("2345 6789 01", 300, 480, 280, 36, 0.8)}

	assert.Empty(t, (&PatternStrategy{}).Candidates(profile, spec, cardPage(tokens), DefaultConfig().Params(false)))

	relaxed := (&PatternStrategy{}).Candidates(profile, spec, cardPage(tokens), DefaultConfig().Params(true))
	require.Len(t, relaxed, 1)
	params := DefaultConfig().Params(true)
	assert.InDelta(t, 0.9, relaxed[0].MatchStrength, 1e-9)
	assert.InDelta(t, 0.8*0.9, relaxed[0].Confidence, 1e-9, "a partial match keeps its measured confidence")
	assert.InDelta(t, params.Score(0.8*0.9, 0.9, params.PartialPenalty), relaxed[0].Score, 1e-9)
}

func TestLabelStrategy_RequiresLabel(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentIDProof, domain.FieldFullName)
	tokens := []recognizer.EngineToken{
		testutil.Token("REPUBLIC OF NOWHERE", 40, 40, 400, 30, 0.95),
		testutil.Token("Name: RAVI KUMAR", 40, 200, 300, 30, 0.9),
	}
	cands := (&LabelStrategy{}).Candidates(profile, spec, cardPage(tokens), DefaultConfig().Params(false))

	require.Len(t, cands, 1)
	assert.Equal(t, "RAVI KUMAR", cands[0].RawValue)
	assert.InDelta(t, 0.9, cands[0].Confidence, 1e-9)
}

func TestLabelStrategy_LabelAbove(t *testing.T) {
	profile, spec := profileSpec(t, domain.DocumentIDProof, domain.FieldIDNumber)
	tokens := []recognizer.EngineToken{
		testutil.Token("ID No", 40, 300, 100, 30, 0.9),
		testutil.Token("X1234567", 40, 340, 200, 30, 0.9),
	}
	cands := (&LabelStrategy{}).Candidates(profile, spec, cardPage(tokens), DefaultConfig().Params(false))

	c, ok := findCandidate(cands, "X1234567")
	require.True(t, ok)
	assert.Equal(t, "X1234567", c.NormalizedValue)
}
