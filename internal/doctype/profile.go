// Package doctype compiles per-document-type configuration (field vocabulary,
// patterns, floors and weights) into immutable profiles used by the pipeline.
package doctype

import (
	"regexp"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Normalizers understood by the extractor.
const (
	NormalizeText       = "text"
	NormalizeDigits     = "digits"
	NormalizeUpperAlnum = "upper_alnum"
	NormalizeDate       = "date"
	NormalizeName       = "name"
	NormalizeGender     = "gender"
)

// Checksums understood by the validator.
const (
	ChecksumVerhoeff = "verhoeff"
	ChecksumPAN      = "pan"
	ChecksumMRZ      = "mrz"
)

// Date rules understood by the validator.
const (
	DateRulePast   = "past"
	DateRuleFuture = "future"
)

// Default tuning values applied when a profile leaves them unset.
const (
	DefaultMinConfidence   = 0.5
	DefaultRelaxFactor     = 0.5
	DefaultShortCircuit    = 0.95
	DefaultPenalty         = 0.5
	DefaultRequiredWeight  = 2.0
	DefaultOptionalWeight  = 1.0
	DefaultMaxLines        = 1
	defaultAddressMaxLines = 3
	defaultStrategy        = "pattern@v2"
)

// Zone is a rectangle in relative (0..1) image coordinates.
type Zone struct {
	X0, Y0, X1, Y1 float64
}

// Contains reports whether the relative point lies inside the zone.
func (z Zone) Contains(x, y float64) bool {
	return x >= z.X0 && x <= z.X1 && y >= z.Y0 && y <= z.Y1
}

// FieldSpec is the compiled form of a FieldPatternSpec.
type FieldSpec struct {
	Field     domain.FieldName
	Kind      domain.FieldKind
	Pattern   *regexp.Regexp
	Partial   *regexp.Regexp
	Format    *regexp.Regexp
	Normalize string
	Checksum  string
	Labels    []string
	Exclude   []string
	Zone      *Zone
	MaxLines  int
	MinLength int
	DateRule  string
	MinAge    int
	MaxAge    int
	Penalty   float64

	MinConfidence          float64
	RelaxedMinConfidence   float64
	TargetConfidence       float64
	ShortCircuitConfidence float64
}

// Profile is the immutable configuration snapshot for one document type.
type Profile struct {
	Type           domain.DocumentType
	Strategy       string
	Satisfies      []domain.DocumentType
	Required       []domain.FieldName
	Optional       []domain.FieldName
	Fields         map[domain.FieldName]*FieldSpec
	StrictFloor    float64
	FallbackFloor  float64
	Weights        map[domain.FieldName]float64
	ExclusionZones []Zone
}

// Vocabulary returns required fields followed by optional fields, in configuration order.
func (p *Profile) Vocabulary() []domain.FieldName {
	out := make([]domain.FieldName, 0, len(p.Required)+len(p.Optional))
	out = append(out, p.Required...)
	return append(out, p.Optional...)
}

// InVocabulary reports whether f is a required or optional field of the profile.
func (p *Profile) InVocabulary(f domain.FieldName) bool {
	_, ok := p.Fields[f]
	return ok
}

// IsRequired reports whether f is a required field.
func (p *Profile) IsRequired(f domain.FieldName) bool {
	for _, r := range p.Required {
		if r == f {
			return true
		}
	}
	return false
}

// Weight returns the aggregation weight of a field.
func (p *Profile) Weight(f domain.FieldName) float64 {
	if w, ok := p.Weights[f]; ok {
		return w
	}
	if p.IsRequired(f) {
		return DefaultRequiredWeight
	}
	return DefaultOptionalWeight
}

// Spec returns the compiled spec for a field, or nil outside the vocabulary.
func (p *Profile) Spec(f domain.FieldName) *FieldSpec {
	return p.Fields[f]
}

// SatisfiesCategory reports whether a verified document of this type counts
// toward the given KYC requirement category.
func (p *Profile) SatisfiesCategory(c domain.DocumentType) bool {
	for _, s := range p.Satisfies {
		if s == c {
			return true
		}
	}
	return false
}

// Excluded reports whether a relative point falls in a header/footer exclusion zone.
func (p *Profile) Excluded(x, y float64) bool {
	for _, z := range p.ExclusionZones {
		if z.Contains(x, y) {
			return true
		}
	}
	return false
}
