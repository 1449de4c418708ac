package domain

import (
	"fmt"
	"time"
)

// FieldName is a member of the closed field vocabulary.
type FieldName string

const (
	FieldFullName    FieldName = "full_name"
	FieldIDNumber    FieldName = "id_number"
	FieldDateOfBirth FieldName = "date_of_birth"
	FieldAddress     FieldName = "address"
	FieldGender      FieldName = "gender"
	FieldFatherName  FieldName = "father_name"
	FieldNationality FieldName = "nationality"
	FieldExpiryDate  FieldName = "expiry_date"
)

var fieldKinds = map[FieldName]FieldKind{
	FieldFullName:    KindName,
	FieldFatherName:  KindName,
	FieldIDNumber:    KindIDNumber,
	FieldDateOfBirth: KindDate,
	FieldExpiryDate:  KindDate,
	FieldAddress:     KindAddress,
	FieldGender:      KindGeneric,
	FieldNationality: KindGeneric,
}

// KnownField reports whether f belongs to the field vocabulary.
func KnownField(f FieldName) bool {
	_, ok := fieldKinds[f]
	return ok
}

// KindOf returns the preprocessing kind for a field.
func KindOf(f FieldName) FieldKind {
	if k, ok := fieldKinds[f]; ok {
		return k
	}
	return KindGeneric
}

// ParseFieldName validates a configured field name against the vocabulary.
func ParseFieldName(s string) (FieldName, error) {
	f := FieldName(s)
	if !KnownField(f) {
		return "", fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}

// ExtractionMethod tags how a candidate was obtained.
type ExtractionMethod string

const (
	MethodPatternMatch ExtractionMethod = "pattern-match"
	MethodPositional   ExtractionMethod = "positional-heuristic"
	MethodFallback     ExtractionMethod = "fallback"
)

// FieldCandidate is one possible value for a field. Confidence is the measured
// value (recognition confidence × match strength) and is never rewritten later.
type FieldCandidate struct {
	Field           FieldName        `json:"field"`
	RawValue        string           `json:"raw_value"`
	NormalizedValue string           `json:"normalized_value"`
	Method          ExtractionMethod `json:"method"`
	Confidence      float64          `json:"confidence"`
	Recipe          string           `json:"recipe"`
	FallbackMode    bool             `json:"fallback_mode"`

	// Ranking inputs, kept for traceability.
	RecognitionConfidence float64 `json:"recognition_confidence"`
	MatchStrength         float64 `json:"match_strength"`
	Aggressiveness        int     `json:"aggressiveness"`
	Box                   Box     `json:"box"`
}

// FieldResult is the validated outcome for one field. Candidate is nil when the
// field could not be resolved. Quality never exceeds the candidate's confidence.
type FieldResult struct {
	Field     FieldName       `json:"field"`
	Candidate *FieldCandidate `json:"candidate,omitempty"`
	Pass      bool            `json:"pass"`
	Quality   float64         `json:"quality"`
	Issues    []IssueCode     `json:"issues"`
}

// Missing reports whether the result carries the MISSING_FIELD issue.
func (r FieldResult) Missing() bool {
	for _, c := range r.Issues {
		if c == IssueMissingField {
			return true
		}
	}
	return false
}

// FromFallback reports whether the selected candidate came from the relaxed pass.
func (r FieldResult) FromFallback() bool {
	return r.Candidate != nil && r.Candidate.Method == MethodFallback
}

// ExtractionOutcome is the persisted trace of one extraction request.
type ExtractionOutcome struct {
	DocumentID        string        `json:"document_id"`
	DocumentType      DocumentType  `json:"document_type"`
	Results           []FieldResult `json:"results"`
	ExtractionSuccess bool          `json:"extraction_success"`
	FallbackMode      bool          `json:"fallback_mode"`
	Strategy          string        `json:"strategy"`
	RecognitionCalls  int           `json:"recognition_calls"`
	ProducedAt        time.Time     `json:"produced_at"`
}

// NewExtractionOutcome builds an outcome and derives FallbackMode from the results
// so the flag can never disagree with the candidates it summarizes.
func NewExtractionOutcome(docID string, docType DocumentType, results []FieldResult, success bool, at time.Time) ExtractionOutcome {
	fallback := false
	for _, r := range results {
		if r.FromFallback() {
			fallback = true
			break
		}
	}
	return ExtractionOutcome{
		DocumentID:        docID,
		DocumentType:      docType,
		Results:           results,
		ExtractionSuccess: success,
		FallbackMode:      fallback,
		ProducedAt:        at,
	}
}

// Result returns the result for a field, if present.
func (o ExtractionOutcome) Result(f FieldName) (FieldResult, bool) {
	for _, r := range o.Results {
		if r.Field == f {
			return r, true
		}
	}
	return FieldResult{}, false
}
