package extractor

import (
	"sort"
	"strings"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Line is a run of tokens sharing a baseline, in reading order.
type Line struct {
	Index      int
	Tokens     []domain.RecognizedToken
	Text       string
	Box        domain.Box
	Confidence float64
}

// Tokens further apart than this many line heights start a new column segment.
const columnGapFactor = 2.0

// GroupLines clusters tokens into lines by vertical overlap, then splits each
// row into column segments at wide horizontal gaps. Lines are returned top to
// bottom, left to right. Split ID numbers ("2345" "6789" "0124") end up on one line.
func GroupLines(tokens []domain.RecognizedToken) []Line {
	if len(tokens) == 0 {
		return nil
	}
	sorted := append([]domain.RecognizedToken(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool {
		_, yi := sorted[i].Box.Center()
		_, yj := sorted[j].Box.Center()
		if yi != yj {
			return yi < yj
		}
		return sorted[i].Box.X < sorted[j].Box.X
	})

	type row struct {
		box    domain.Box
		tokens []domain.RecognizedToken
	}
	var rows []*row
	for _, t := range sorted {
		var target *row
		for i := len(rows) - 1; i >= 0 && i >= len(rows)-3; i-- {
			if sameRow(rows[i].box, t.Box) {
				target = rows[i]
				break
			}
		}
		if target == nil {
			target = &row{}
			rows = append(rows, target)
		}
		target.tokens = append(target.tokens, t)
		target.box = target.box.Union(t.Box)
	}

	var lines []Line
	for _, r := range rows {
		sort.SliceStable(r.tokens, func(i, j int) bool { return r.tokens[i].Box.X < r.tokens[j].Box.X })
		maxGap := int(columnGapFactor * float64(max(r.box.H, 1)))
		start := 0
		for i := 1; i <= len(r.tokens); i++ {
			if i < len(r.tokens) {
				prev := r.tokens[i-1].Box
				if r.tokens[i].Box.X-(prev.X+prev.W) <= maxGap {
					continue
				}
			}
			lines = append(lines, newLine(r.tokens[start:i]))
			start = i
		}
	}
	for i := range lines {
		lines[i].Index = i
	}
	return lines
}

// sameRow reports whether b overlaps the row vertically by at least half the
// smaller height.
func sameRow(rowBox, b domain.Box) bool {
	top := max(rowBox.Y, b.Y)
	bottom := min(rowBox.Y+rowBox.H, b.Y+b.H)
	overlap := bottom - top
	if overlap <= 0 {
		return false
	}
	h := min(rowBox.H, b.H)
	if h <= 0 {
		return overlap > 0
	}
	return float64(overlap) >= 0.5*float64(h)
}

func newLine(tokens []domain.RecognizedToken) Line {
	l := Line{Tokens: append([]domain.RecognizedToken(nil), tokens...)}
	texts := make([]string, 0, len(tokens))
	var weighted, weight float64
	for _, t := range tokens {
		texts = append(texts, t.Text)
		l.Box = l.Box.Union(t.Box)
		n := float64(len([]rune(t.Text)))
		weighted += t.Confidence * n
		weight += n
	}
	l.Text = strings.Join(texts, " ")
	if weight > 0 {
		l.Confidence = weighted / weight
	}
	return l
}

// Window is one or more vertically adjacent lines treated as a single text.
type Window struct {
	First, Last int
	Lines       []Line
}

// Windows returns every run of up to maxLines adjacent lines. Lines are
// adjacent when the next one starts within 1.5 line heights below the previous
// one and the two overlap horizontally.
func Windows(lines []Line, maxLines int) []Window {
	if maxLines < 1 {
		maxLines = 1
	}
	var out []Window
	for i := range lines {
		out = append(out, Window{First: i, Last: i, Lines: lines[i : i+1]})
		for j := i + 1; j < len(lines) && j-i < maxLines; j++ {
			if !adjacent(lines[j-1], lines[j]) {
				break
			}
			out = append(out, Window{First: i, Last: j, Lines: lines[i : j+1]})
		}
	}
	return out
}

func adjacent(a, b Line) bool {
	gap := float64(b.Box.Y - (a.Box.Y + a.Box.H))
	h := float64(max(a.Box.H, 1))
	if gap < -0.5*h || gap > 1.5*h {
		return false
	}
	return min(a.Box.X+a.Box.W, b.Box.X+b.Box.W) > max(a.Box.X, b.Box.X)
}

// Box returns the union of the window's lines.
func (w Window) Box() domain.Box {
	var b domain.Box
	for _, l := range w.Lines {
		b = b.Union(l.Box)
	}
	return b
}

// Confidence is the text-length weighted mean over the window's tokens.
func (w Window) Confidence() float64 {
	var weighted, weight float64
	for _, l := range w.Lines {
		n := float64(len([]rune(l.Text)))
		weighted += l.Confidence * n
		weight += n
	}
	if weight == 0 {
		return 0
	}
	return weighted / weight
}
