package recognizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanOptions controls token text post-processing.
type CleanOptions struct {
	NormalizeForm      string            // "NFC" (default), "NFKC", "" to disable
	CollapseWhitespace bool              // collapse runs of whitespace to a single space
	Trim               bool              // trim leading/trailing whitespace
	RemoveControlChars bool              // drop control characters, line breaks included
	RemoveZeroWidth    bool              // remove zero-width spaces/joiners
	ReplaceMap         map[string]string // applied after normalization, longest key first
}

// DefaultCleanOptions returns the cleaning applied to every recognized token.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		NormalizeForm:      "NFC",
		CollapseWhitespace: true,
		Trim:               true,
		RemoveControlChars: true,
		RemoveZeroWidth:    true,
		ReplaceMap:         DefaultReplaceMap(),
	}
}

// DefaultReplaceMap folds typographic punctuation that engines emit for card
// print into the ASCII forms the field patterns expect.
func DefaultReplaceMap() map[string]string {
	return map[string]string{
		"\u2018": "'",
		"\u2019": "'",
		"\u201C": "\"",
		"\u201D": "\"",
		"\u2010": "-",
		"\u2011": "-",
		"\u2013": "-",
		"\u2014": "-",
		"\u2044": "/",
		"\u2215": "/",
		"\u00A0": " ",
		"\u2009": " ",
	}
}

// PostProcessText applies normalization and cleaning to token text.
func PostProcessText(s string, opts CleanOptions) string {
	if s == "" {
		return s
	}

	switch strings.ToUpper(opts.NormalizeForm) {
	case "NFC":
		s = norm.NFC.String(s)
	case "NFKC":
		s = norm.NFKC.String(s)
	}
	if opts.RemoveZeroWidth {
		s = removeZeroWidth(s)
	}
	if opts.RemoveControlChars {
		s = removeControlChars(s)
	}
	if len(opts.ReplaceMap) > 0 {
		s = applyReplaceMap(s, opts.ReplaceMap)
	}
	if opts.CollapseWhitespace {
		s = wsRe.ReplaceAllString(s, " ")
	}
	if opts.Trim {
		s = strings.TrimSpace(s)
	}
	return s
}

func applyReplaceMap(s string, replaceMap map[string]string) string {
	keys := make([]string, 0, len(replaceMap))
	for k := range replaceMap {
		keys = append(keys, k)
	}
	// Longer keys first to avoid partial overlaps.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		s = strings.ReplaceAll(s, k, replaceMap[k])
	}
	return s
}

func removeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var wsRe = regexp.MustCompile(`\s+`)

// removeZeroWidth removes common zero-width characters used in OCR noise.
func removeZeroWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateText reports whether cleaned token text looks like text rather than
// engine noise: at least one letter or digit, and at most a third symbols.
// The MRZ filler '<' counts as text.
func ValidateText(s string) bool {
	if s == "" {
		return false
	}
	var text, other, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			text++
		case r == '<':
		default:
			other++
		}
	}
	if total == 0 || text == 0 {
		return false
	}
	return float64(other)/float64(total) <= 0.34
}
