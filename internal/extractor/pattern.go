package extractor

import (
	"regexp"
	"strings"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// PatternStrategy ("pattern@v2") matches each field's pattern against lines and
// multi-line windows, preferring labeled values and values inside the field's
// expected zone.
type PatternStrategy struct{}

// Tag implements Strategy.
func (s *PatternStrategy) Tag() string { return "pattern@v2" }

// Candidates implements Strategy.
func (s *PatternStrategy) Candidates(profile *doctype.Profile, spec *doctype.FieldSpec, page Page, params Params) []Candidate {
	if spec.Pattern == nil {
		return nil
	}
	lines := GroupLines(visibleTokens(profile, page, params))
	labeledBelow := labelLineFollowers(lines, spec.Labels)

	var out []Candidate
	for _, w := range Windows(lines, spec.MaxLines) {
		first := w.Lines[0]
		value, labeled := splitLabel(first.Text, spec.Labels)
		if !labeled && labeledBelow[w.First] {
			labeled = true
		}
		parts := []string{value}
		for _, l := range w.Lines[1:] {
			parts = append(parts, l.Text)
		}
		text := strings.TrimSpace(strings.Join(parts, " "))
		if text == "" {
			continue
		}

		matches, partial := findMatches(spec, text, params.Relaxed)
		for _, m := range matches {
			c, ok := buildCandidate(profile, spec, page, params, w, text, m, labeled, partial)
			if ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// visibleTokens drops tokens in header/footer exclusion zones for strict
// passes. Relaxed passes keep them; candidates pay ExclusionPenalty instead.
func visibleTokens(profile *doctype.Profile, page Page, params Params) []domain.RecognizedToken {
	if params.Relaxed || len(profile.ExclusionZones) == 0 {
		return page.Tokens
	}
	out := make([]domain.RecognizedToken, 0, len(page.Tokens))
	for _, t := range page.Tokens {
		if !profile.Excluded(page.Rel(t.Box.Center())) {
			out = append(out, t)
		}
	}
	return out
}

// labelLineFollowers marks lines directly below a label-only line.
func labelLineFollowers(lines []Line, labels []string) map[int]bool {
	out := make(map[int]bool)
	if len(labels) == 0 {
		return out
	}
	for i, l := range lines {
		if !isLabelLine(l.Text, labels) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+2; j++ {
			if adjacent(l, lines[j]) {
				out[j] = true
				break
			}
		}
	}
	return out
}

// findMatches returns full-pattern matches, or partial-pattern matches when
// relaxed and nothing matched in full.
func findMatches(spec *doctype.FieldSpec, text string, relaxed bool) ([]string, bool) {
	if m := allMatches(spec.Pattern, text); len(m) > 0 {
		return m, false
	}
	if relaxed && spec.Partial != nil {
		return allMatches(spec.Partial, text), true
	}
	return nil, false
}

func allMatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllString(text, -1) {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func buildCandidate(profile *doctype.Profile, spec *doctype.FieldSpec, page Page, params Params,
	w Window, text, match string, labeled, partial bool,
) (Candidate, bool) {
	if hasExcludedWord(match, spec.Exclude) {
		return Candidate{}, false
	}

	strength := coverage(match, text)
	if len(spec.Labels) > 0 && !labeled {
		strength *= params.UnlabeledPenalty
	}

	// relaxed-only penalties rank candidates but leave the measured confidence alone
	bias := 1.0
	if partial {
		bias *= params.PartialPenalty
	}
	box := w.Box()
	cx, cy := page.Rel(box.Center())
	if params.Relaxed && profile.Excluded(cx, cy) {
		bias *= params.ExclusionPenalty
	}

	method := domain.MethodPatternMatch
	if spec.Zone != nil {
		if spec.Zone.Contains(cx, cy) {
			if !labeled {
				method = domain.MethodPositional
			}
		} else {
			bias *= params.OutsideZoneBias
		}
	}

	recConf := w.Confidence()
	conf := recConf * strength
	return Candidate{
		FieldCandidate: domain.FieldCandidate{
			Field:                 spec.Field,
			RawValue:              match,
			NormalizedValue:       Normalize(spec.Normalize, match),
			Method:                method,
			Confidence:            conf,
			RecognitionConfidence: recConf,
			MatchStrength:         strength,
			Box:                   box,
		},
		Score: params.Score(conf, strength, bias),
		Order: w.First,
	}, true
}
