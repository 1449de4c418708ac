package extractor

import "github.com/MeKo-Tech/kycscan/internal/doctype"

// LabelStrategy ("label@v1") only accepts values anchored by a printed label,
// either on the same line ("Name: ...") or on the line below a label-only
// line. It suits generic ID_PROOF/ADDRESS_PROOF documents whose layout is
// unknown, where positional guesses do more harm than good.
type LabelStrategy struct{}

// Tag implements Strategy.
func (s *LabelStrategy) Tag() string { return "label@v1" }

// Candidates implements Strategy.
func (s *LabelStrategy) Candidates(profile *doctype.Profile, spec *doctype.FieldSpec, page Page, params Params) []Candidate {
	if spec.Pattern == nil || len(spec.Labels) == 0 {
		return nil
	}
	lines := GroupLines(visibleTokens(profile, page, params))
	labeledBelow := labelLineFollowers(lines, spec.Labels)

	var out []Candidate
	for _, w := range Windows(lines, spec.MaxLines) {
		value, labeled := splitLabel(w.Lines[0].Text, spec.Labels)
		if !labeled {
			if !labeledBelow[w.First] {
				continue
			}
			value = w.Lines[0].Text
		}
		text := value
		for _, l := range w.Lines[1:] {
			text += " " + l.Text
		}
		matches, partial := findMatches(spec, text, params.Relaxed)
		for _, m := range matches {
			if c, ok := buildCandidate(profile, spec, page, params, w, text, m, true, partial); ok {
				out = append(out, c)
			}
		}
	}
	return out
}
