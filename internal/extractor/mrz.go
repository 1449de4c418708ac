package extractor

import (
	"strings"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// TD3 (passport) machine readable zone geometry.
const (
	mrzLineLength    = 44
	mrzRelaxedLength = 40
)

// MRZStrategy ("mrz@v1") reads passport fields from the two-line TD3 machine
// readable zone. Pages without a readable MRZ go to Visual.
type MRZStrategy struct {
	Visual Strategy
}

// Tag implements Strategy.
func (s *MRZStrategy) Tag() string { return "mrz@v1" }

// Candidates implements Strategy.
func (s *MRZStrategy) Candidates(profile *doctype.Profile, spec *doctype.FieldSpec, page Page, params Params) []Candidate {
	zone, ok := FindMRZ(GroupLines(page.Tokens), params.Relaxed)
	if !ok {
		if s.Visual == nil {
			return nil
		}
		return s.Visual.Candidates(profile, spec, page, params)
	}
	raw, normalized, ok := zone.Field(spec.Field)
	if !ok || normalized == "" {
		return nil
	}

	strength := 1.0
	if !zone.CompositeValid() {
		strength = 0.8
	}
	conf := zone.Confidence * strength
	return []Candidate{{
		FieldCandidate: domain.FieldCandidate{
			Field:                 spec.Field,
			RawValue:              raw,
			NormalizedValue:       normalized,
			Method:                domain.MethodPatternMatch,
			Confidence:            conf,
			RecognitionConfidence: zone.Confidence,
			MatchStrength:         strength,
			Box:                   zone.Box,
		},
		Score: params.Score(conf, strength, 1),
		Order: zone.Order,
	}}
}

// MRZ is a parsed TD3 zone.
type MRZ struct {
	Line1, Line2 string
	Box          domain.Box
	Confidence   float64
	Order        int
}

// FindMRZ looks for two consecutive lines shaped like a TD3 zone. Relaxed
// matching accepts lines a few characters short and pads them with filler.
func FindMRZ(lines []Line, relaxed bool) (MRZ, bool) {
	for i := 0; i+1 < len(lines); i++ {
		l1, ok1 := mrzLine(lines[i].Text, relaxed)
		l2, ok2 := mrzLine(lines[i+1].Text, relaxed)
		if !ok1 || !ok2 || l1[0] != 'P' {
			continue
		}
		if relaxed {
			l2 = fixDigits(l2)
		}
		w := Window{First: i, Last: i + 1, Lines: lines[i : i+2]}
		return MRZ{Line1: l1, Line2: l2, Box: w.Box(), Confidence: w.Confidence(), Order: i}, true
	}
	return MRZ{}, false
}

func mrzLine(text string, relaxed bool) (string, bool) {
	s := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '<') {
			return "", false
		}
	}
	switch {
	case len(s) == mrzLineLength:
		return s, true
	case relaxed && len(s) >= mrzRelaxedLength && len(s) < mrzLineLength:
		return s + strings.Repeat("<", mrzLineLength-len(s)), true
	default:
		return "", false
	}
}

// fixDigits repairs common letter-for-digit confusions in the numeric
// positions of line 2.
func fixDigits(l2 string) string {
	b := []byte(l2)
	for _, span := range [][2]int{{9, 10}, {13, 20}, {21, 28}, {42, 44}} {
		for i := span[0]; i < span[1]; i++ {
			switch b[i] {
			case 'O', 'D', 'Q':
				b[i] = '0'
			case 'I', 'L':
				b[i] = '1'
			case 'S':
				b[i] = '5'
			case 'B':
				b[i] = '8'
			case 'Z':
				b[i] = '2'
			}
		}
	}
	return string(b)
}

// Field returns the raw MRZ slice for a field (including its check digit
// where one exists) and the normalized value.
func (m MRZ) Field(f domain.FieldName) (raw, normalized string, ok bool) {
	switch f {
	case domain.FieldFullName:
		surname, given := m.Names()
		name := strings.TrimSpace(given + " " + surname)
		return name, Normalize(doctype.NormalizeName, name), true
	case domain.FieldIDNumber:
		raw = m.Line2[0:10]
		return raw, strings.TrimRight(raw[:9], "<"), true
	case domain.FieldDateOfBirth:
		raw = m.Line2[13:20]
		t, ok := mrzDate(raw[:6], false)
		if !ok {
			return raw, "", true
		}
		return raw, t.Format(DateLayout), true
	case domain.FieldExpiryDate:
		raw = m.Line2[21:28]
		t, ok := mrzDate(raw[:6], true)
		if !ok {
			return raw, "", true
		}
		return raw, t.Format(DateLayout), true
	case domain.FieldNationality:
		raw = m.Line2[10:13]
		return raw, strings.Trim(raw, "<"), true
	case domain.FieldGender:
		raw = m.Line2[20:21]
		return raw, normalizeGender(raw), true
	default:
		return "", "", false
	}
}

// Names splits the name field of line 1 into surname and given names.
func (m MRZ) Names() (surname, given string) {
	parts := strings.SplitN(m.Line1[5:], "<<", 2)
	surname = strings.TrimSpace(strings.ReplaceAll(parts[0], "<", " "))
	if len(parts) > 1 {
		given = strings.Join(strings.Fields(strings.ReplaceAll(parts[1], "<", " ")), " ")
	}
	return surname, given
}

// CompositeValid checks the final check digit of line 2, which covers the
// document number, birth date, expiry and personal number.
func (m MRZ) CompositeValid() bool {
	l := m.Line2
	data := l[0:10] + l[13:20] + l[21:43]
	return CheckDigitValid(data + l[43:44])
}

// MRZCheckDigit computes the ICAO 9303 7-3-1 check digit. It returns -1 for
// characters outside the MRZ alphabet.
func MRZCheckDigit(s string) int {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(s); i++ {
		var v int
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c == '<':
			v = 0
		default:
			return -1
		}
		sum += v * weights[i%3]
	}
	return sum % 10
}

// CheckDigitValid reports whether the last character of s is the check digit
// of the characters before it.
func CheckDigitValid(s string) bool {
	if len(s) < 2 {
		return false
	}
	last := s[len(s)-1]
	if last < '0' || last > '9' {
		return false
	}
	return MRZCheckDigit(s[:len(s)-1]) == int(last-'0')
}

// mrzDate parses YYMMDD. Birth dates pivot into the past, expiry dates into
// the current century.
func mrzDate(s string, expiry bool) (time.Time, bool) {
	t, err := time.Parse("060102", s)
	if err != nil {
		return time.Time{}, false
	}
	yy := t.Year() % 100
	year := 2000 + yy
	if !expiry && year > time.Now().Year() {
		year -= 100
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}
