// Package validator applies per-field format, range and checksum rules and
// turns candidates into scored field results. It is pure: no I/O, no storage.
package validator

import (
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/extractor"
)

// Validator checks candidates against their field specs. The clock is only
// used for date rules.
type Validator struct {
	now func() time.Time
}

// New creates a Validator on the wall clock.
func New() *Validator {
	return &Validator{now: time.Now}
}

// WithClock returns a copy that reads time from now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// ValidateAll validates every vocabulary field of the profile in order. Fields
// without a candidate become MISSING_FIELD results.
func (v *Validator) ValidateAll(profile *doctype.Profile, candidates map[domain.FieldName]*domain.FieldCandidate) []domain.FieldResult {
	fields := profile.Vocabulary()
	out := make([]domain.FieldResult, 0, len(fields))
	for _, f := range fields {
		out = append(out, v.Validate(profile.Spec(f), candidates[f]))
	}
	return out
}

// Validate scores one candidate. Quality starts at the candidate's confidence
// and is multiplied by the field penalty for every failed rule, so it can only
// go down. A nil candidate yields pass=false, quality 0 and MISSING_FIELD.
func (v *Validator) Validate(spec *doctype.FieldSpec, c *domain.FieldCandidate) domain.FieldResult {
	res := domain.FieldResult{Field: spec.Field, Candidate: c, Issues: []domain.IssueCode{}}
	if c == nil {
		res.Issues = append(res.Issues, domain.IssueMissingField)
		return res
	}

	failed := v.check(spec, c)
	quality := c.Confidence
	for range failed {
		quality *= spec.Penalty
	}
	res.Issues = append(res.Issues, failed...)
	res.Pass = len(failed) == 0
	res.Quality = min(max(quality, 0), c.Confidence)

	if c.Method == domain.MethodFallback {
		res.Issues = append(res.Issues, domain.IssueFallbackExtraction)
	}
	return res
}

func (v *Validator) check(spec *doctype.FieldSpec, c *domain.FieldCandidate) []domain.IssueCode {
	var failed []domain.IssueCode
	value := c.NormalizedValue

	if spec.Format != nil && !spec.Format.MatchString(value) {
		failed = append(failed, domain.IssueFormatMismatch)
	}
	if spec.MinLength > 0 && utf8.RuneCountInString(value) < spec.MinLength {
		failed = append(failed, domain.IssueTooShort)
	}
	if spec.Checksum != "" && !checksumValid(spec.Checksum, c) {
		failed = append(failed, domain.IssueChecksumFailed)
	}
	if spec.Normalize == doctype.NormalizeDate || spec.DateRule != "" {
		failed = append(failed, v.checkDate(spec, value)...)
	}
	return failed
}

func checksumValid(kind string, c *domain.FieldCandidate) bool {
	switch kind {
	case doctype.ChecksumVerhoeff:
		return VerhoeffValid(c.NormalizedValue)
	case doctype.ChecksumPAN:
		return PANValid(c.NormalizedValue)
	case doctype.ChecksumMRZ:
		return MRZValid(c.RawValue)
	default:
		return false
	}
}

func (v *Validator) checkDate(spec *doctype.FieldSpec, value string) []domain.IssueCode {
	d, err := time.Parse(extractor.DateLayout, value)
	if err != nil {
		return []domain.IssueCode{domain.IssueDateUnparseable}
	}
	now := v.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var failed []domain.IssueCode
	switch spec.DateRule {
	case doctype.DateRulePast:
		if d.After(today) {
			return []domain.IssueCode{domain.IssueDateInFuture}
		}
		if spec.MinAge > 0 || spec.MaxAge > 0 {
			age := Age(d, today)
			if age < spec.MinAge || (spec.MaxAge > 0 && age > spec.MaxAge) {
				failed = append(failed, domain.IssueAgeOutOfRange)
			}
		}
	case doctype.DateRuleFuture:
		if !d.After(today) {
			failed = append(failed, domain.IssueDateExpired)
		}
	}
	return failed
}

// Age returns completed years between birth and on.
func Age(birth, on time.Time) int {
	years := on.Year() - birth.Year()
	if on.Month() < birth.Month() || (on.Month() == birth.Month() && on.Day() < birth.Day()) {
		years--
	}
	return years
}
