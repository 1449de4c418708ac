package extractor

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Page is what one variant's recognition looks like to a strategy: tokens in
// source coordinates plus the source size for zone checks.
type Page struct {
	Variant        string
	Recipe         string
	Aggressiveness int
	Tokens         []domain.RecognizedToken
	Width, Height  int
}

// Rel converts a source pixel point to relative coordinates.
func (p Page) Rel(x, y float64) (float64, float64) {
	if p.Width == 0 || p.Height == 0 {
		return 0, 0
	}
	return x / float64(p.Width), y / float64(p.Height)
}

// Params are the knobs a strategy applies for one pass.
type Params struct {
	Relaxed bool

	ConfidenceWeight float64
	StrengthWeight   float64
	OutsideZoneBias  float64
	ExclusionPenalty float64
	UnlabeledPenalty float64
	PartialPenalty   float64
}

// MinConfidence returns the candidate floor for the pass.
func (p Params) MinConfidence(spec *doctype.FieldSpec) float64 {
	if p.Relaxed {
		return spec.RelaxedMinConfidence
	}
	return spec.MinConfidence
}

// Score is the ranking score: conf^α × strength^β × bias.
func (p Params) Score(conf, strength, bias float64) float64 {
	return math.Pow(conf, p.ConfidenceWeight) * math.Pow(strength, p.StrengthWeight) * bias
}

// Candidate is a strategy's proposal for a field on one page.
type Candidate struct {
	domain.FieldCandidate
	Score float64
	// Order is the reading-order position on the page; lower reads first.
	Order int
}

// Strategy turns the tokens of one page into candidates for one field. It is
// pure: the same page, profile and params always give the same candidates.
type Strategy interface {
	Tag() string
	Candidates(profile *doctype.Profile, spec *doctype.FieldSpec, page Page, params Params) []Candidate
}

// Registry maps "name@vN" tags to strategies.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry registers strategies by their tag. A later strategy with the same
// tag replaces an earlier one.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Tag()] = s
	}
	return r
}

// DefaultRegistry holds the built-in strategies.
func DefaultRegistry() *Registry {
	pattern := &PatternStrategy{}
	return NewRegistry(pattern, &LabelStrategy{}, &MRZStrategy{Visual: pattern})
}

// Get returns the strategy registered under tag.
func (r *Registry) Get(tag string) (Strategy, error) {
	s, ok := r.strategies[tag]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", domain.ErrUnknownStrategy, tag, strings.Join(r.Tags(), ", "))
	}
	return s, nil
}

// Select picks the strategy for a profile, honoring a per-request override.
func (r *Registry) Select(profile *doctype.Profile, override string) (Strategy, error) {
	if override != "" {
		return r.Get(override)
	}
	return r.Get(profile.Strategy)
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	out := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// splitLabel strips a leading label ("DOB:", "Name", "Address -") from text.
// It reports whether a label was found.
func splitLabel(text string, labels []string) (string, bool) {
	if len(labels) == 0 {
		return text, false
	}
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		return text, false
	}
	if i := strings.IndexByte(text, ':'); i > 0 && containsLabel(lower[:i], labels) {
		return strings.TrimSpace(text[i+1:]), true
	}
	for _, l := range byLengthDesc(labels) {
		if !strings.HasPrefix(lower, l) {
			continue
		}
		if len(lower) > len(l) && isWordRune(rune(lower[len(l)])) {
			continue
		}
		return strings.TrimLeft(text[len(l):], " :-.#"), true
	}
	return text, false
}

// isLabelLine reports whether a line holds nothing but label words, such as
// "Permanent Account Number" printed above the value.
func isLabelLine(text string, labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	rest, ok := splitLabel(text, labels)
	if ok && strings.TrimFunc(rest, func(r rune) bool { return !isWordRune(r) }) == "" {
		return true
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !isWordRune(r) })
	if len(words) == 0 {
		return false
	}
	set := make(map[string]bool)
	for _, l := range labels {
		for _, w := range strings.Fields(l) {
			set[w] = true
		}
	}
	for _, w := range words {
		if !set[w] {
			return false
		}
	}
	return true
}

func containsLabel(lower string, labels []string) bool {
	for _, l := range labels {
		if containsWord(lower, l) {
			return true
		}
	}
	return false
}

// containsWord reports whether phrase occurs in s on word boundaries.
func containsWord(s, phrase string) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		before := start == 0 || !isWordRune(rune(s[start-1]))
		after := end == len(s) || !isWordRune(rune(s[end]))
		if before && after {
			return true
		}
		from = start + 1
	}
	return false
}

func hasExcludedWord(value string, exclude []string) bool {
	if len(exclude) == 0 {
		return false
	}
	lower := strings.ToLower(value)
	for _, e := range exclude {
		if containsWord(lower, e) {
			return true
		}
	}
	return false
}

func byLengthDesc(labels []string) []string {
	out := append([]string(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// coverage is the share of meaningful characters of value that match covers.
func coverage(match, value string) float64 {
	m := significant(match)
	v := significant(value)
	if v == 0 {
		return 0
	}
	c := float64(m) / float64(v)
	if c > 1 {
		return 1
	}
	return c
}

func significant(s string) int {
	n := 0
	for _, r := range s {
		if isWordRune(r) {
			n++
		}
	}
	return n
}
