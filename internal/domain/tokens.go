package domain

import "image"

// Box is an axis-aligned bounding region in source-image pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Center returns the box centre.
func (b Box) Center() (float64, float64) {
	return float64(b.X) + float64(b.W)/2, float64(b.Y) + float64(b.H)/2
}

// Union returns the smallest box covering both boxes.
func (b Box) Union(o Box) Box {
	if b.W == 0 && b.H == 0 {
		return o
	}
	if o.W == 0 && o.H == 0 {
		return b
	}
	r := b.Rect().Union(o.Rect())
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// RecognizedToken is one span of text returned by the OCR engine for a variant.
type RecognizedToken struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// FieldKind groups fields by the preprocessing they respond best to.
type FieldKind string

const (
	KindName     FieldKind = "name"
	KindIDNumber FieldKind = "id_number"
	KindDate     FieldKind = "date"
	KindAddress  FieldKind = "address"
	KindGeneric  FieldKind = "generic"
)
