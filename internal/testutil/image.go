package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Card dimensions used by the fixtures, roughly ID-1 proportions.
const (
	CardWidth  = 1000
	CardHeight = 630
)

// CreateTestImage creates a simple test image with the specified dimensions and color.
func CreateTestImage(width, height int, backgroundColor color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return img
}

// RenderDocument draws each token's text at its box on a white canvas, so the
// synthetic upload looks like the document the scripted engine describes.
func RenderDocument(width, height int, tokens []recognizer.EngineToken) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Src: &image.Uniform{color.Black}, Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	for _, t := range tokens {
		drawer.Dot = fixed.P(t.Box.X, t.Box.Y+ascent)
		drawer.DrawString(t.Text)
	}
	return img
}

// DocumentPNG renders tokens onto a card-sized canvas and encodes it as PNG.
func DocumentPNG(t testing.TB, tokens []recognizer.EngineToken) []byte {
	t.Helper()
	data, err := utils.EncodePNG(RenderDocument(CardWidth, CardHeight, tokens))
	require.NoError(t, err)
	return data
}

// BlankPNG encodes a white image of the given size.
func BlankPNG(t testing.TB, width, height int) []byte {
	t.Helper()
	data, err := utils.EncodePNG(CreateTestImage(width, height, color.White))
	require.NoError(t, err)
	return data
}
