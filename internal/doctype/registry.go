package doctype

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfiles []byte

var strategyTagPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*@v[0-9]+$`)

var (
	knownNormalizers = map[string]bool{
		"":                  true,
		NormalizeText:       true,
		NormalizeDigits:     true,
		NormalizeUpperAlnum: true,
		NormalizeDate:       true,
		NormalizeName:       true,
		NormalizeGender:     true,
	}
	knownChecksums = map[string]bool{
		"":               true,
		ChecksumVerhoeff: true,
		ChecksumPAN:      true,
		ChecksumMRZ:      true,
	}
	knownDateRules = map[string]bool{
		"":             true,
		DateRulePast:   true,
		DateRuleFuture: true,
	}
)

// Registry holds compiled profiles keyed by document type.
type Registry struct {
	profiles map[domain.DocumentType]*Profile
}

// Default compiles the built-in profiles. It panics only if the embedded
// file is broken, which the package tests guard against.
func Default() *Registry {
	r, err := Load(bytes.NewReader(defaultProfiles))
	if err != nil {
		panic(fmt.Sprintf("built-in document profiles are invalid: %v", err))
	}
	return r
}

// LoadFile compiles profiles from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path) //nolint:gosec // G304: operator-supplied configuration path
	if err != nil {
		return nil, fmt.Errorf("open document type config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Load parses and compiles profiles. Any malformed rule is reported as a
// *domain.ValidationRuleError.
func Load(r io.Reader) (*Registry, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse document type config: %w", err)
	}
	return Compile(file)
}

// Compile turns raw specs into a registry.
func Compile(file File) (*Registry, error) {
	if len(file.DocumentTypes) == 0 {
		return nil, errors.New("no document types configured")
	}
	reg := &Registry{profiles: make(map[domain.DocumentType]*Profile, len(file.DocumentTypes))}
	for name, spec := range file.DocumentTypes {
		dt, err := domain.ParseDocumentType(name)
		if err != nil {
			return nil, &domain.ValidationRuleError{DocumentType: domain.DocumentType(name), Rule: "type", Err: err}
		}
		p, err := compileProfile(dt, spec)
		if err != nil {
			return nil, err
		}
		reg.profiles[dt] = p
	}
	return reg, nil
}

// Get returns the profile for a document type.
func (r *Registry) Get(t domain.DocumentType) (*Profile, error) {
	p, ok := r.profiles[t]
	if !ok {
		return nil, fmt.Errorf("%w %q", domain.ErrUnknownDocumentType, t)
	}
	return p, nil
}

// Types lists configured document types in sorted order.
func (r *Registry) Types() []domain.DocumentType {
	out := make([]domain.DocumentType, 0, len(r.profiles))
	for t := range r.profiles {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Profiles returns every profile in type order.
func (r *Registry) Profiles() []*Profile {
	types := r.Types()
	out := make([]*Profile, 0, len(types))
	for _, t := range types {
		out = append(out, r.profiles[t])
	}
	return out
}

func compileProfile(dt domain.DocumentType, spec ProfileSpec) (*Profile, error) {
	fail := func(field domain.FieldName, rule string, err error) error {
		return &domain.ValidationRuleError{DocumentType: dt, Field: field, Rule: rule, Err: err}
	}

	p := &Profile{
		Type:          dt,
		Strategy:      spec.Strategy,
		Fields:        make(map[domain.FieldName]*FieldSpec),
		StrictFloor:   spec.StrictFloor,
		FallbackFloor: spec.FallbackFloor,
		Weights:       make(map[domain.FieldName]float64),
	}
	if p.Strategy == "" {
		p.Strategy = defaultStrategy
	}
	if !strategyTagPattern.MatchString(p.Strategy) {
		return nil, fail("", "strategy", fmt.Errorf("malformed strategy tag %q, want name@vN", p.Strategy))
	}

	if err := checkUnit(p.StrictFloor); err != nil {
		return nil, fail("", "strict_floor", err)
	}
	if err := checkUnit(p.FallbackFloor); err != nil {
		return nil, fail("", "fallback_floor", err)
	}
	if p.FallbackFloor > p.StrictFloor {
		return nil, fail("", "fallback_floor", fmt.Errorf("fallback floor %.2f exceeds strict floor %.2f", p.FallbackFloor, p.StrictFloor))
	}

	for _, s := range spec.Satisfies {
		c, err := domain.ParseDocumentType(s)
		if err != nil {
			return nil, fail("", "satisfies", err)
		}
		p.Satisfies = append(p.Satisfies, c)
	}
	if len(p.Satisfies) == 0 {
		p.Satisfies = []domain.DocumentType{dt}
	}

	seen := make(map[domain.FieldName]bool)
	parseList := func(names []string, rule string) ([]domain.FieldName, error) {
		out := make([]domain.FieldName, 0, len(names))
		for _, n := range names {
			f, err := domain.ParseFieldName(n)
			if err != nil {
				return nil, fail("", rule, err)
			}
			if seen[f] {
				return nil, fail(f, rule, errors.New("field listed more than once"))
			}
			seen[f] = true
			out = append(out, f)
		}
		return out, nil
	}
	var err error
	if p.Required, err = parseList(spec.RequiredFields, "required_fields"); err != nil {
		return nil, err
	}
	if p.Optional, err = parseList(spec.OptionalFields, "optional_fields"); err != nil {
		return nil, err
	}

	for name := range spec.FieldPatterns {
		f, err := domain.ParseFieldName(name)
		if err != nil {
			return nil, fail("", "field_patterns", err)
		}
		if !seen[f] {
			return nil, fail(f, "field_patterns", errors.New("pattern given for a field outside the vocabulary"))
		}
	}

	for _, f := range p.Vocabulary() {
		ps := spec.FieldPatterns[string(f)]
		fs, err := compileField(p, f, ps)
		if err != nil {
			return nil, err
		}
		p.Fields[f] = fs
	}

	for name, w := range spec.FieldWeights {
		f, err := domain.ParseFieldName(name)
		if err != nil {
			return nil, fail("", "field_weights", err)
		}
		if !seen[f] {
			return nil, fail(f, "field_weights", errors.New("weight given for a field outside the vocabulary"))
		}
		if w < 0 {
			return nil, fail(f, "field_weights", fmt.Errorf("negative weight %.2f", w))
		}
		p.Weights[f] = w
	}

	for i, z := range spec.ExclusionZones {
		zone, err := compileZone(z)
		if err != nil {
			return nil, fail("", fmt.Sprintf("exclusion_zones[%d]", i), err)
		}
		p.ExclusionZones = append(p.ExclusionZones, zone)
	}
	return p, nil
}

func compileField(p *Profile, f domain.FieldName, ps FieldPatternSpec) (*FieldSpec, error) {
	fail := func(rule string, err error) error {
		return &domain.ValidationRuleError{DocumentType: p.Type, Field: f, Rule: rule, Err: err}
	}
	fs := &FieldSpec{
		Field:                  f,
		Kind:                   domain.KindOf(f),
		Normalize:              ps.Normalize,
		Checksum:               ps.Checksum,
		MaxLines:               ps.MaxLines,
		MinLength:              ps.MinLength,
		DateRule:               ps.DateRule,
		MinConfidence:          ps.MinConfidence,
		RelaxedMinConfidence:   ps.RelaxedMinConfidence,
		TargetConfidence:       ps.TargetConfidence,
		ShortCircuitConfidence: ps.ShortCircuitConfidence,
		Penalty:                DefaultPenalty,
	}

	var err error
	if ps.Pattern == "" && !strings.HasPrefix(p.Strategy, "mrz@") {
		return nil, fail("pattern", errors.New("pattern is required"))
	}
	if fs.Pattern, err = compileRegexp(ps.Pattern); err != nil {
		return nil, fail("pattern", err)
	}
	if fs.Partial, err = compileRegexp(ps.Partial); err != nil {
		return nil, fail("partial", err)
	}
	if fs.Format, err = compileRegexp(ps.Format); err != nil {
		return nil, fail("format", err)
	}
	if !knownNormalizers[fs.Normalize] {
		return nil, fail("normalize", fmt.Errorf("unknown normalizer %q", fs.Normalize))
	}
	if fs.Normalize == "" {
		fs.Normalize = defaultNormalizer(fs.Kind)
	}
	if !knownChecksums[fs.Checksum] {
		return nil, fail("checksum", fmt.Errorf("unknown checksum %q", fs.Checksum))
	}
	if !knownDateRules[fs.DateRule] {
		return nil, fail("date_rule", fmt.Errorf("unknown date rule %q", fs.DateRule))
	}

	for _, l := range ps.Labels {
		fs.Labels = append(fs.Labels, strings.ToLower(strings.TrimSpace(l)))
	}
	for _, e := range ps.Exclude {
		fs.Exclude = append(fs.Exclude, strings.ToLower(strings.TrimSpace(e)))
	}
	if ps.Zone != nil {
		z, err := compileZone(*ps.Zone)
		if err != nil {
			return nil, fail("zone", err)
		}
		fs.Zone = &z
	}

	if fs.MaxLines < 0 || fs.MinLength < 0 {
		return nil, fail("max_lines", errors.New("max_lines and min_length must not be negative"))
	}
	if fs.MaxLines == 0 {
		fs.MaxLines = DefaultMaxLines
		if fs.Kind == domain.KindAddress {
			fs.MaxLines = defaultAddressMaxLines
		}
	}

	if ps.MinAge != nil {
		fs.MinAge = *ps.MinAge
	}
	if ps.MaxAge != nil {
		fs.MaxAge = *ps.MaxAge
	}
	if fs.MinAge < 0 || fs.MaxAge < 0 || (fs.MaxAge > 0 && fs.MinAge > fs.MaxAge) {
		return nil, fail("age", fmt.Errorf("invalid age bounds [%d, %d]", fs.MinAge, fs.MaxAge))
	}

	if ps.Penalty != nil {
		fs.Penalty = *ps.Penalty
	}
	if fs.Penalty < 0 || fs.Penalty >= 1 {
		return nil, fail("penalty", fmt.Errorf("penalty %.2f must be in [0, 1)", fs.Penalty))
	}

	if fs.MinConfidence == 0 {
		fs.MinConfidence = DefaultMinConfidence
	}
	if fs.RelaxedMinConfidence == 0 {
		fs.RelaxedMinConfidence = fs.MinConfidence * DefaultRelaxFactor
	}
	if fs.TargetConfidence == 0 {
		fs.TargetConfidence = p.StrictFloor
	}
	if fs.ShortCircuitConfidence == 0 {
		fs.ShortCircuitConfidence = DefaultShortCircuit
	}
	for rule, v := range map[string]float64{
		"min_confidence":           fs.MinConfidence,
		"relaxed_min_confidence":   fs.RelaxedMinConfidence,
		"target_confidence":        fs.TargetConfidence,
		"short_circuit_confidence": fs.ShortCircuitConfidence,
	} {
		if err := checkUnit(v); err != nil {
			return nil, fail(rule, err)
		}
	}
	if fs.RelaxedMinConfidence > fs.MinConfidence {
		return nil, fail("relaxed_min_confidence", errors.New("relaxed minimum must not exceed the strict minimum"))
	}
	if fs.ShortCircuitConfidence < fs.MinConfidence {
		return nil, fail("short_circuit_confidence", errors.New("short-circuit confidence must not be below the minimum"))
	}
	return fs, nil
}

func defaultNormalizer(k domain.FieldKind) string {
	switch k {
	case domain.KindName:
		return NormalizeName
	case domain.KindDate:
		return NormalizeDate
	case domain.KindIDNumber:
		return NormalizeUpperAlnum
	default:
		return NormalizeText
	}
}

func compileRegexp(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

func compileZone(z ZoneSpec) (Zone, error) {
	for _, v := range []float64{z.X0, z.Y0, z.X1, z.Y1} {
		if err := checkUnit(v); err != nil {
			return Zone{}, err
		}
	}
	if z.X0 >= z.X1 || z.Y0 >= z.Y1 {
		return Zone{}, fmt.Errorf("empty zone (%.2f,%.2f)-(%.2f,%.2f)", z.X0, z.Y0, z.X1, z.Y1)
	}
	return Zone{X0: z.X0, Y0: z.Y0, X1: z.X1, Y1: z.Y1}, nil
}

func checkUnit(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("value %.3f outside [0, 1]", v)
	}
	return nil
}
