package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

func profile(t *testing.T, dt domain.DocumentType) *doctype.Profile {
	t.Helper()
	p, err := doctype.Default().Get(dt)
	require.NoError(t, err)
	return p
}

func passed(f domain.FieldName, q float64) domain.FieldResult {
	return domain.FieldResult{
		Field:     f,
		Candidate: &domain.FieldCandidate{Field: f, Method: domain.MethodPatternMatch, Confidence: q},
		Pass:      true,
		Quality:   q,
	}
}

func recovered(f domain.FieldName, q float64) domain.FieldResult {
	return domain.FieldResult{
		Field:     f,
		Candidate: &domain.FieldCandidate{Field: f, Method: domain.MethodFallback, Confidence: q, FallbackMode: true},
		Pass:      true,
		Quality:   q,
		Issues:    []domain.IssueCode{domain.IssueFallbackExtraction},
	}
}

func failed(f domain.FieldName, q float64, issues ...domain.IssueCode) domain.FieldResult {
	return domain.FieldResult{
		Field:     f,
		Candidate: &domain.FieldCandidate{Field: f, Method: domain.MethodPatternMatch, Confidence: q * 2},
		Quality:   q,
		Issues:    issues,
	}
}

func missing(f domain.FieldName) domain.FieldResult {
	return domain.FieldResult{Field: f, Issues: []domain.IssueCode{domain.IssueMissingField}}
}

func outcome(results ...domain.FieldResult) domain.ExtractionOutcome {
	return domain.NewExtractionOutcome("d1", domain.DocumentAadhaar, results, true, time.Now())
}

func TestAggregate_Rules(t *testing.T) {
	aadhaar := profile(t, domain.DocumentAadhaar)

	tests := []struct {
		name    string
		results []domain.FieldResult
		status  domain.VerificationStatus
		reasons []domain.IssueCode
	}{
		{
			name: "all required pass above strict floor",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), passed(domain.FieldIDNumber, 0.87),
				passed(domain.FieldDateOfBirth, 0.95), passed(domain.FieldGender, 0.96),
				passed(domain.FieldAddress, 0.94),
			},
			status: domain.StatusVerified,
		},
		{
			name: "missing required field is rejected",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), missing(domain.FieldIDNumber),
				passed(domain.FieldDateOfBirth, 0.95), missing(domain.FieldGender), missing(domain.FieldAddress),
			},
			status:  domain.StatusRejected,
			reasons: []domain.IssueCode{domain.IssueMissingField, domain.IssueMissingField, domain.IssueMissingField},
		},
		{
			name: "missing required beats fallback",
			results: []domain.FieldResult{
				recovered(domain.FieldFullName, 0.6), missing(domain.FieldIDNumber), passed(domain.FieldDateOfBirth, 0.9),
			},
			status:  domain.StatusRejected,
			reasons: []domain.IssueCode{domain.IssueMissingField, domain.IssueFallbackExtraction, domain.IssueLowQuality},
		},
		{
			name: "fallback above fallback floor needs review",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), recovered(domain.FieldIDNumber, 0.54),
				passed(domain.FieldDateOfBirth, 0.95), passed(domain.FieldGender, 0.9),
				passed(domain.FieldAddress, 0.9),
			},
			status:  domain.StatusNeedsReview,
			reasons: []domain.IssueCode{domain.IssueFallbackExtraction, domain.IssueLowQuality},
		},
		{
			name: "fallback is never verified even at high quality",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), recovered(domain.FieldIDNumber, 0.9),
				passed(domain.FieldDateOfBirth, 0.95), passed(domain.FieldGender, 0.9),
				passed(domain.FieldAddress, 0.9),
			},
			status:  domain.StatusNeedsReview,
			reasons: []domain.IssueCode{domain.IssueFallbackExtraction},
		},
		{
			name: "fallback with a missing optional field is partial",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), recovered(domain.FieldIDNumber, 0.54),
				passed(domain.FieldDateOfBirth, 0.95), passed(domain.FieldGender, 0.9),
				missing(domain.FieldAddress),
			},
			status:  domain.StatusPartiallyVerified,
			reasons: []domain.IssueCode{domain.IssueFallbackExtraction, domain.IssueLowQuality, domain.IssueMissingField},
		},
		{
			name: "fallback below fallback floor is partial",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), recovered(domain.FieldIDNumber, 0.3),
				passed(domain.FieldDateOfBirth, 0.95),
			},
			status:  domain.StatusPartiallyVerified,
			reasons: []domain.IssueCode{domain.IssueFallbackExtraction, domain.IssueLowQuality},
		},
		{
			name: "failed checksum is partial",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.96), failed(domain.FieldIDNumber, 0.45, domain.IssueChecksumFailed),
				passed(domain.FieldDateOfBirth, 0.95),
			},
			status:  domain.StatusPartiallyVerified,
			reasons: []domain.IssueCode{domain.IssueChecksumFailed, domain.IssueLowQuality},
		},
		{
			name: "low quality required field is partial",
			results: []domain.FieldResult{
				passed(domain.FieldFullName, 0.55), passed(domain.FieldIDNumber, 0.9),
				passed(domain.FieldDateOfBirth, 0.95),
			},
			status:  domain.StatusPartiallyVerified,
			reasons: []domain.IssueCode{domain.IssueLowQuality},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Aggregate(aadhaar, outcome(tt.results...))
			require.NoError(t, err)
			assert.Equal(t, tt.status, v.Status)

			var codes []domain.IssueCode
			for _, r := range v.Reasons {
				codes = append(codes, r.Code)
				assert.NotEmpty(t, r.Message)
			}
			assert.Equal(t, tt.reasons, codes)
		})
	}
}

func TestAggregate_WeightedScore(t *testing.T) {
	aadhaar := profile(t, domain.DocumentAadhaar)
	v, err := Aggregate(aadhaar, outcome(
		passed(domain.FieldFullName, 0.96), passed(domain.FieldIDNumber, 0.873),
		passed(domain.FieldDateOfBirth, 0.95), passed(domain.FieldGender, 0.96),
		passed(domain.FieldAddress, 0.94),
	))
	require.NoError(t, err)

	want := (2*0.96 + 3*0.873 + 2*0.95 + 0.5*0.96 + 1*0.94) / 8.5
	assert.InDelta(t, want, v.Score, 1e-9)
	assert.GreaterOrEqual(t, v.Score, aadhaar.StrictFloor)
	assert.Empty(t, v.Reasons)
}

func TestAggregate_MissingCountsAsZero(t *testing.T) {
	aadhaar := profile(t, domain.DocumentAadhaar)
	v, err := Aggregate(aadhaar, outcome(passed(domain.FieldFullName, 1)))
	require.NoError(t, err)
	assert.InDelta(t, 2/8.5, v.Score, 1e-9)
	assert.Equal(t, domain.StatusRejected, v.Status)
}

func TestAggregate_MissingRequiredNeverVerified(t *testing.T) {
	aadhaar := profile(t, domain.DocumentAadhaar)
	for _, f := range aadhaar.Required {
		var results []domain.FieldResult
		for _, g := range aadhaar.Vocabulary() {
			if g == f {
				results = append(results, missing(g))
				continue
			}
			results = append(results, passed(g, 1))
		}
		v, err := Aggregate(aadhaar, outcome(results...))
		require.NoError(t, err)
		assert.NotEqual(t, domain.StatusVerified, v.Status, f)
	}
}

func TestAggregate_FieldOutsideVocabulary(t *testing.T) {
	aadhaar := profile(t, domain.DocumentAadhaar)
	_, err := Aggregate(aadhaar, outcome(passed(domain.FieldExpiryDate, 0.9)))

	var inconsistency *domain.AggregationInconsistency
	require.ErrorAs(t, err, &inconsistency)
	assert.Equal(t, domain.FieldExpiryDate, inconsistency.Field)
	assert.Equal(t, domain.DocumentAadhaar, inconsistency.DocumentType)
}

func TestAggregate_Photo(t *testing.T) {
	v, err := Aggregate(profile(t, domain.DocumentPhoto), domain.ExtractionOutcome{DocumentType: domain.DocumentPhoto})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, v.Status)
	assert.InDelta(t, 1.0, v.Score, 1e-9)
}

func TestUnreadable(t *testing.T) {
	v := Unreadable()
	assert.Equal(t, domain.StatusRejected, v.Status)
	require.Len(t, v.Reasons, 1)
	assert.Equal(t, domain.IssueUnreadableDocument, v.Reasons[0].Code)
	assert.NotEmpty(t, v.Reasons[0].Message)
}
