package extractor

import (
	"strings"
	"time"
	"unicode"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the canonical form of normalized dates.
const DateLayout = "2006-01-02"

// Day-first layouts used on Indian identity documents, plus ISO.
var dateLayouts = []string{
	"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
	"2006-01-02", "02/01/06", "02-01-06", "02.01.06",
	"02 Jan 2006", "2 Jan 2006", "02 January 2006", "02-Jan-2006",
}

var titleCaser = cases.Title(language.Und)

// Normalize converts a raw match into the canonical value for its normalizer.
// Values that cannot be normalized are returned cleaned but otherwise as read,
// leaving the validator to flag them.
func Normalize(kind, raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	switch kind {
	case doctype.NormalizeDigits:
		return keep(raw, unicode.IsDigit)
	case doctype.NormalizeUpperAlnum:
		return strings.ToUpper(keep(raw, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }))
	case doctype.NormalizeDate:
		if t, ok := ParseDate(raw); ok {
			return t.Format(DateLayout)
		}
		return raw
	case doctype.NormalizeName:
		name := strings.Trim(raw, " .,'-")
		return titleCaser.String(strings.ToLower(name))
	case doctype.NormalizeGender:
		return normalizeGender(raw)
	default:
		return strings.Trim(raw, " ,;:-")
	}
}

// ParseDate parses day-first and ISO dates. Two-digit years pivot on the
// current year so that a date never lands in the future.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if strings.Count(layout, "06") == 1 && !strings.Contains(layout, "2006") && t.After(time.Now()) {
			t = t.AddDate(-100, 0, 0)
		}
		return t, true
	}
	return time.Time{}, false
}

func normalizeGender(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "M", "MALE":
		return "MALE"
	case "F", "FEMALE":
		return "FEMALE"
	case "T", "TRANSGENDER":
		return "TRANSGENDER"
	case "X", "<":
		return "UNSPECIFIED"
	default:
		return strings.ToUpper(strings.TrimSpace(raw))
	}
}

func keep(s string, ok func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ok(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
