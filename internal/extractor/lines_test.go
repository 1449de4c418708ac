package extractor

import (
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recognized(in []recognizer.EngineToken) []domain.RecognizedToken {
	out := make([]domain.RecognizedToken, len(in))
	for i, t := range in {
		out[i] = domain.RecognizedToken{Text: t.Text, Box: t.Box, Confidence: t.Confidence}
	}
	return out
}

func lineTexts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestGroupLines_JoinsSplitIDNumber(t *testing.T) {
	lines := GroupLines(recognized(testutil.AadhaarTokens()))

	assert.Contains(t, lineTexts(lines), "2345 6789 0124")
	for i, l := range lines {
		assert.Equal(t, i, l.Index)
	}
}

func TestGroupLines_ReadingOrder(t *testing.T) {
	tokens := recognized([]recognizer.EngineToken{
		testutil.Token("second", 100, 100, 80, 20, 0.9),
		testutil.Token("WORLD", 160, 52, 70, 20, 0.9),
		testutil.Token("HELLO", 80, 50, 70, 20, 0.9),
	})
	lines := GroupLines(tokens)

	require.Len(t, lines, 2)
	assert.Equal(t, "HELLO WORLD", lines[0].Text)
	assert.Equal(t, domain.Box{X: 80, Y: 50, W: 150, H: 22}, lines[0].Box)
	assert.Equal(t, "second", lines[1].Text)
}

func TestGroupLines_SplitsColumns(t *testing.T) {
	lines := GroupLines(recognized(testutil.UtilityBillTokens()))

	texts := lineTexts(lines)
	assert.Contains(t, texts, "Consumer Name: RAVI KUMAR")
	assert.Contains(t, texts, "Consumer No: 1234567890")
}

func TestGroupLines_Confidence(t *testing.T) {
	lines := GroupLines(recognized([]recognizer.EngineToken{
		testutil.Token("AB", 0, 0, 20, 10, 1.0),
		testutil.Token("CDEF", 25, 0, 40, 10, 0.4),
	}))

	require.Len(t, lines, 1)
	assert.InDelta(t, (2*1.0+4*0.4)/6, lines[0].Confidence, 1e-9)
}

func TestGroupLines_Empty(t *testing.T) {
	assert.Nil(t, GroupLines(nil))
}

func TestWindows(t *testing.T) {
	lines := GroupLines(recognized(testutil.UtilityBillTokens()))

	var multi []string
	for _, w := range Windows(lines, 4) {
		if len(w.Lines) > 1 {
			multi = append(multi, w.Lines[0].Text+" | "+w.Lines[len(w.Lines)-1].Text)
		}
	}
	assert.Equal(t, []string{"Address: 12 MG Road, Indiranagar, | Bengaluru, Karnataka 560038"}, multi)

	single := Windows(lines, 1)
	assert.Len(t, single, len(lines))
	assert.Len(t, Windows(lines, 0), len(lines))
}

func TestWindow_BoxAndConfidence(t *testing.T) {
	lines := GroupLines(recognized([]recognizer.EngineToken{
		testutil.Token("12 MG Road", 40, 200, 200, 28, 0.9),
		testutil.Token("Bengaluru 560038", 40, 240, 300, 28, 0.6),
	}))
	ws := Windows(lines, 2)

	require.Len(t, ws, 3)
	w := ws[1]
	assert.Equal(t, 0, w.First)
	assert.Equal(t, 1, w.Last)
	assert.Equal(t, domain.Box{X: 40, Y: 200, W: 300, H: 68}, w.Box())
	assert.InDelta(t, (10*0.9+16*0.6)/26, w.Confidence(), 1e-9)
}
