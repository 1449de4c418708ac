// Package verification turns field results into a document verdict and rolls
// verdicts up into the customer's KYC status.
package verification

import (
	"math"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Verdict is the aggregator's decision for one document.
type Verdict struct {
	Status       domain.VerificationStatus `json:"status"`
	Score        float64                   `json:"score"`
	Reasons      []domain.Reason           `json:"reasons"`
	FallbackMode bool                      `json:"fallback_mode"`
}

// Aggregate applies the ordered status rules to an extraction outcome. The
// first matching rule wins:
//
//  1. a required field is missing: REJECTED
//  2. fallback was used and every resolved field reaches the fallback floor: NEEDS_REVIEW
//  3. no fallback and every required field passes at the strict floor: VERIFIED
//  4. otherwise: PARTIALLY_VERIFIED
//
// A result for a field outside the profile's vocabulary returns
// *domain.AggregationInconsistency.
func Aggregate(profile *doctype.Profile, outcome domain.ExtractionOutcome) (Verdict, error) {
	byField := make(map[domain.FieldName]domain.FieldResult, len(outcome.Results))
	for _, r := range outcome.Results {
		if !profile.InVocabulary(r.Field) {
			return Verdict{}, &domain.AggregationInconsistency{DocumentType: profile.Type, Field: r.Field}
		}
		byField[r.Field] = r
	}

	vocab := profile.Vocabulary()
	if len(vocab) == 0 {
		return Verdict{Status: domain.StatusVerified, Score: 1}, nil
	}

	v := Verdict{
		Score:        score(profile, byField),
		FallbackMode: outcome.FallbackMode,
	}

	var missing []domain.FieldName
	for _, f := range profile.Required {
		if r, ok := byField[f]; !ok || r.Missing() {
			missing = append(missing, f)
		}
	}

	switch {
	case len(missing) > 0:
		v.Status = domain.StatusRejected
	case outcome.FallbackMode && allAbove(vocab, byField, profile.FallbackFloor):
		v.Status = domain.StatusNeedsReview
	case !outcome.FallbackMode && requiredPass(profile, byField):
		v.Status = domain.StatusVerified
	default:
		v.Status = domain.StatusPartiallyVerified
	}
	v.Reasons = reasons(profile, vocab, byField, missing)
	return v, nil
}

// Unreadable is the verdict for a document whose image could not be decoded or
// produced no usable tokens.
func Unreadable() Verdict {
	return Verdict{
		Status:  domain.StatusRejected,
		Reasons: []domain.Reason{domain.NewReason(domain.IssueUnreadableDocument, "")},
	}
}

// score is the weighted mean of field qualities over the vocabulary. Missing
// fields count with quality zero.
func score(profile *doctype.Profile, byField map[domain.FieldName]domain.FieldResult) float64 {
	var sum, weights float64
	for _, f := range profile.Vocabulary() {
		w := profile.Weight(f)
		weights += w
		if r, ok := byField[f]; ok {
			sum += w * r.Quality
		}
	}
	if weights == 0 {
		return 0
	}
	return math.Min(1, math.Max(0, sum/weights))
}

// allAbove reports whether every vocabulary field reaches floor. A missing
// field has quality 0.
func allAbove(vocab []domain.FieldName, byField map[domain.FieldName]domain.FieldResult, floor float64) bool {
	for _, f := range vocab {
		r, ok := byField[f]
		if !ok || r.Missing() || r.Quality < floor {
			return false
		}
	}
	return true
}

func requiredPass(profile *doctype.Profile, byField map[domain.FieldName]domain.FieldResult) bool {
	for _, f := range profile.Required {
		r, ok := byField[f]
		if !ok || !r.Pass || r.Quality < profile.StrictFloor {
			return false
		}
	}
	return true
}

// reasons lists the missing required fields first, then every other issue in
// vocabulary order. Resolved required fields under the strict floor get
// LOW_QUALITY so a PARTIALLY_VERIFIED verdict always says why.
func reasons(profile *doctype.Profile, vocab []domain.FieldName,
	byField map[domain.FieldName]domain.FieldResult, missing []domain.FieldName,
) []domain.Reason {
	out := make([]domain.Reason, 0, len(missing))
	isMissing := make(map[domain.FieldName]bool, len(missing))
	for _, f := range missing {
		isMissing[f] = true
		out = append(out, domain.NewReason(domain.IssueMissingField, f))
	}
	for _, f := range vocab {
		if isMissing[f] {
			continue
		}
		r, ok := byField[f]
		if !ok {
			continue
		}
		for _, code := range r.Issues {
			out = append(out, domain.NewReason(code, f))
		}
		if profile.IsRequired(f) && !r.Missing() && r.Quality < profile.StrictFloor && !hasIssue(r.Issues, domain.IssueLowQuality) {
			out = append(out, domain.NewReason(domain.IssueLowQuality, f))
		}
	}
	return out
}

func hasIssue(issues []domain.IssueCode, code domain.IssueCode) bool {
	for _, c := range issues {
		if c == code {
			return true
		}
	}
	return false
}
