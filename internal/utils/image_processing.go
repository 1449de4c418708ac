package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// Deskew search parameters. Scanned and photographed cards are rarely more than
// a few degrees off, so the search stays narrow.
const (
	deskewMaxAngle  = 6.0
	deskewStep      = 0.5
	deskewSampleMax = 480
)

// Grayscale converts an image to luminance while keeping an NRGBA layout so the
// result can flow into further imaging operations.
func Grayscale(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "grayscale", Err: errors.New("input image is nil")}
	}
	return imaging.Grayscale(img), nil
}

// Contrast stretches contrast by pct percent (-100..100).
func Contrast(img image.Image, pct float64) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "contrast", Err: errors.New("input image is nil")}
	}
	return imaging.AdjustContrast(img, pct), nil
}

// Sharpen applies an unsharp mask with the given sigma.
func Sharpen(img image.Image, sigma float64) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "sharpen", Err: errors.New("input image is nil")}
	}
	return imaging.Sharpen(img, sigma), nil
}

// Denoise suppresses sensor and JPEG noise with a light gaussian blur.
func Denoise(img image.Image, sigma float64) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "denoise", Err: errors.New("input image is nil")}
	}
	if sigma <= 0 {
		return imaging.Clone(img), nil
	}
	return imaging.Blur(img, sigma), nil
}

// Upscale enlarges an image by factor using Lanczos resampling.
func Upscale(img image.Image, factor float64) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "upscale", Err: errors.New("input image is nil")}
	}
	if factor <= 0 {
		return nil, &ImageProcessingError{Operation: "upscale", Err: fmt.Errorf("invalid factor %.2f", factor)}
	}
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w < 1 || h < 1 {
		return nil, &ImageProcessingError{Operation: "upscale", Err: fmt.Errorf("result %dx%d is empty", w, h)}
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// CropRelative crops the rectangle described by fractions of the image size,
// grown by pad (also a fraction). It returns the crop and its offset in the
// source image so coordinates can be mapped back.
func CropRelative(img image.Image, x0, y0, x1, y1, pad float64) (*image.NRGBA, image.Point, error) {
	if img == nil {
		return nil, image.Point{}, &ImageProcessingError{Operation: "crop", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rect := image.Rect(
		b.Min.X+int(math.Floor((x0-pad)*w)),
		b.Min.Y+int(math.Floor((y0-pad)*h)),
		b.Min.X+int(math.Ceil((x1+pad)*w)),
		b.Min.Y+int(math.Ceil((y1+pad)*h)),
	).Intersect(b)
	if rect.Empty() {
		return nil, image.Point{}, &ImageProcessingError{
			Operation: "crop",
			Err:       fmt.Errorf("region (%.2f,%.2f)-(%.2f,%.2f) is outside the image", x0, y0, x1, y1),
		}
	}
	return imaging.Crop(img, rect), rect.Min.Sub(b.Min), nil
}

// OtsuLevel computes the global Otsu threshold (0..255) of an image's luminance.
func OtsuLevel(img image.Image) uint8 {
	hist, total := luminanceHistogram(img)
	if total == 0 {
		return 128
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, maxVar float64
	wB := 0
	best := 0
	for t, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(c)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > maxVar {
			maxVar = between
			best = t
		}
	}
	return uint8(best) //nolint:gosec // G115: best is a histogram index in [0,255]
}

// OtsuThreshold binarizes an image using its global Otsu level. Text ends up
// black on white.
func OtsuThreshold(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "otsu", Err: errors.New("input image is nil")}
	}
	level := OtsuLevel(img)
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		for x := range b.Dx() {
			v := luminance(img.At(b.Min.X+x, b.Min.Y+y))
			if v > level {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out, nil
}

// AdaptiveThreshold binarizes each pixel against the mean of its window minus
// offset. It copes with uneven lighting where a global level fails.
func AdaptiveThreshold(img image.Image, window int, offset float64) (*image.Gray, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "adaptive_threshold", Err: errors.New("input image is nil")}
	}
	if window < 3 {
		return nil, &ImageProcessingError{Operation: "adaptive_threshold", Err: fmt.Errorf("window %d too small", window)}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Summed-area table with a zero row and column.
	integral := make([]float64, (w+1)*(h+1))
	for y := range h {
		var row float64
		for x := range w {
			row += float64(luminance(img.At(b.Min.X+x, b.Min.Y+y)))
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	half := window / 2
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		y0, y1 := max(0, y-half), min(h, y+half+1)
		for x := range w {
			x0, x1 := max(0, x-half), min(w, x+half+1)
			area := float64((x1 - x0) * (y1 - y0))
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			v := float64(luminance(img.At(b.Min.X+x, b.Min.Y+y)))
			if v > sum/area-offset {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out, nil
}

// EstimateSkew returns the rotation in degrees (counter-clockwise) that best
// aligns text rows horizontally. It maximizes the variance of the horizontal
// projection profile of a binarized, downsampled copy.
func EstimateSkew(img image.Image) float64 {
	if img == nil || img.Bounds().Empty() {
		return 0
	}
	sample := image.Image(img)
	if b := img.Bounds(); b.Dx() > deskewSampleMax {
		sample = imaging.Resize(img, deskewSampleMax, 0, imaging.Box)
	}
	bin, err := OtsuThreshold(sample)
	if err != nil {
		return 0
	}

	best, bestScore := 0.0, projectionVariance(bin)
	for a := deskewStep; a <= deskewMaxAngle; a += deskewStep {
		for _, angle := range []float64{a, -a} {
			rotated := imaging.Rotate(bin, angle, color.White)
			if s := projectionVariance(rotated); s > bestScore {
				best, bestScore = angle, s
			}
		}
	}
	return best
}

// Deskew rotates an image by the estimated skew angle. Corners exposed by the
// rotation are filled white so they read as background.
func Deskew(img image.Image) (*image.NRGBA, float64, error) {
	if img == nil {
		return nil, 0, &ImageProcessingError{Operation: "deskew", Err: errors.New("input image is nil")}
	}
	angle := EstimateSkew(img)
	if angle == 0 {
		return imaging.Clone(img), 0, nil
	}
	return imaging.Rotate(img, angle, color.White), angle, nil
}

// projectionVariance scores how "striped" the dark pixel rows are.
func projectionVariance(img image.Image) float64 {
	b := img.Bounds()
	if b.Dy() == 0 {
		return 0
	}
	rows := make([]float64, b.Dy())
	var mean float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		var dark float64
		for x := b.Min.X; x < b.Max.X; x++ {
			if luminance(img.At(x, y)) < 128 {
				dark++
			}
		}
		rows[y-b.Min.Y] = dark
		mean += dark
	}
	mean /= float64(len(rows))
	var v float64
	for _, r := range rows {
		v += (r - mean) * (r - mean)
	}
	return v / float64(len(rows))
}

func luminanceHistogram(img image.Image) ([256]int, int) {
	var hist [256]int
	if img == nil {
		return hist, 0
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[luminance(img.At(x, y))]++
		}
	}
	return hist, b.Dx() * b.Dy()
}

func luminance(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// ImageQuality captures basic properties used to reason about an input.
type ImageQuality struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	IsGrayscale bool    `json:"grayscale"`
	HasAlpha    bool    `json:"has_alpha"`
	MeanLuma    float64 `json:"mean_luma"`
}

// AssessImageQuality analyzes basic image properties.
func AssessImageQuality(img image.Image) ImageQuality {
	if img == nil {
		return ImageQuality{}
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return ImageQuality{Width: width, Height: height}
	}

	isGrayscale, hasAlpha := analyzePixelProperties(img, bounds)
	hist, total := luminanceHistogram(img)
	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	return ImageQuality{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		IsGrayscale: isGrayscale,
		HasAlpha:    hasAlpha,
		MeanLuma:    sum / float64(total),
	}
}

// analyzePixelProperties checks if image is grayscale and has alpha channel.
func analyzePixelProperties(img image.Image, bounds image.Rectangle) (bool, bool) {
	isGrayscale := true
	hasAlpha := false

	for y := bounds.Min.Y; y < bounds.Max.Y && (isGrayscale || !hasAlpha); y++ {
		for x := bounds.Min.X; x < bounds.Max.X && (isGrayscale || !hasAlpha); x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 65535 {
				hasAlpha = true
			}
			if r != g || g != b {
				isGrayscale = false
			}
		}
	}

	return isGrayscale, hasAlpha
}
