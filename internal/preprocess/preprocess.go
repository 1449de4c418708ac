// Package preprocess turns an uploaded document image into field-specific
// variants, ordered from most aggressive to mildest.
package preprocess

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/utils"
	"github.com/disintegration/imaging"
)

// Config tunes the transforms behind each op.
type Config struct {
	ContrastPercent float64 `mapstructure:"contrast_percent" yaml:"contrast_percent" json:"contrast_percent"`
	DenoiseSigma    float64 `mapstructure:"denoise_sigma" yaml:"denoise_sigma" json:"denoise_sigma"`
	SharpenSigma    float64 `mapstructure:"sharpen_sigma" yaml:"sharpen_sigma" json:"sharpen_sigma"`
	AdaptiveWindow  int     `mapstructure:"adaptive_window" yaml:"adaptive_window" json:"adaptive_window"`
	AdaptiveOffset  float64 `mapstructure:"adaptive_offset" yaml:"adaptive_offset" json:"adaptive_offset"`
	ROIPadding      float64 `mapstructure:"roi_padding" yaml:"roi_padding" json:"roi_padding"`
	MaxDimension    int     `mapstructure:"max_dimension" yaml:"max_dimension" json:"max_dimension"`
}

// DefaultConfig returns transform settings that work for phone photos and flatbed scans.
func DefaultConfig() Config {
	return Config{
		ContrastPercent: 40,
		DenoiseSigma:    0.8,
		SharpenSigma:    1.2,
		AdaptiveWindow:  25,
		AdaptiveOffset:  10,
		ROIPadding:      0.03,
		MaxDimension:    2400,
	}
}

// Preprocessor decodes uploads and produces variants. It is stateless apart
// from its configuration and safe for concurrent use.
type Preprocessor struct {
	cfg Config
}

// New creates a Preprocessor, filling unset values from DefaultConfig.
func New(cfg Config) *Preprocessor {
	def := DefaultConfig()
	if cfg.ContrastPercent == 0 {
		cfg.ContrastPercent = def.ContrastPercent
	}
	if cfg.DenoiseSigma == 0 {
		cfg.DenoiseSigma = def.DenoiseSigma
	}
	if cfg.SharpenSigma == 0 {
		cfg.SharpenSigma = def.SharpenSigma
	}
	if cfg.AdaptiveWindow == 0 {
		cfg.AdaptiveWindow = def.AdaptiveWindow
	}
	if cfg.AdaptiveOffset == 0 {
		cfg.AdaptiveOffset = def.AdaptiveOffset
	}
	if cfg.ROIPadding == 0 {
		cfg.ROIPadding = def.ROIPadding
	}
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = def.MaxDimension
	}
	return &Preprocessor{cfg: cfg}
}

// Source is a decoded document image plus the variants rendered from it.
// Token boxes from every variant are expressed in Source pixel coordinates.
type Source struct {
	Image   image.Image
	Format  string
	Quality utils.ImageQuality

	pre      *Preprocessor
	mu       sync.Mutex
	variants map[string]*Variant
}

// Width returns the source width in pixels.
func (s *Source) Width() int { return s.Image.Bounds().Dx() }

// Height returns the source height in pixels.
func (s *Source) Height() int { return s.Image.Bounds().Dy() }

// Decode turns upload bytes into a Source. Unreadable input yields a
// *domain.ImageDecodeError. Very large images are scaled down once here.
func (p *Preprocessor) Decode(data []byte) (*Source, error) {
	img, format, err := utils.DecodeImage(data)
	if err != nil {
		return nil, &domain.ImageDecodeError{Format: format, Err: err}
	}
	b := img.Bounds()
	if p.cfg.MaxDimension > 0 && (b.Dx() > p.cfg.MaxDimension || b.Dy() > p.cfg.MaxDimension) {
		img = imaging.Fit(img, p.cfg.MaxDimension, p.cfg.MaxDimension, imaging.Lanczos)
		slog.Debug("Downscaled large upload", "from_w", b.Dx(), "from_h", b.Dy(),
			"to_w", img.Bounds().Dx(), "to_h", img.Bounds().Dy())
	}
	return p.Wrap(img, format), nil
}

// Wrap builds a Source around an already decoded image.
func (p *Preprocessor) Wrap(img image.Image, format string) *Source {
	return &Source{
		Image:    img,
		Format:   format,
		Quality:  utils.AssessImageQuality(img),
		pre:      p,
		variants: make(map[string]*Variant),
	}
}

// Variants returns the variants for one field, most aggressive first, ending
// with the untouched source. Variants are shared between fields whose recipes
// coincide, so each is rendered at most once per Source.
func (p *Preprocessor) Variants(src *Source, field *doctype.FieldSpec, relaxed bool) []*Variant {
	recipes := RecipesFor(field.Kind, field.Zone != nil, relaxed)
	out := make([]*Variant, 0, len(recipes))

	src.mu.Lock()
	defer src.mu.Unlock()
	for _, r := range recipes {
		key := r.Name
		var zone *doctype.Zone
		if r.UsesROI() {
			zone = field.Zone
			key = fmt.Sprintf("%s[%.3f,%.3f,%.3f,%.3f]", r.Name, zone.X0, zone.Y0, zone.X1, zone.Y1)
		}
		v, ok := src.variants[key]
		if !ok {
			v = &Variant{Recipe: r, key: key, src: src, zone: zone}
			src.variants[key] = v
		}
		out = append(out, v)
	}
	return out
}

// Variant is a lazily rendered transform of a Source.
type Variant struct {
	Recipe Recipe

	key  string
	src  *Source
	zone *doctype.Zone

	once    sync.Once
	img     image.Image
	inverse []func(x, y float64) (float64, float64)
	err     error
}

// Key identifies the variant within its Source; identical keys render identical images.
func (v *Variant) Key() string { return v.key }

// Render produces the variant image on first use and caches it.
func (v *Variant) Render() (image.Image, error) {
	v.once.Do(func() {
		v.img, v.err = v.render()
	})
	return v.img, v.err
}

func (v *Variant) render() (image.Image, error) {
	cfg := v.src.pre.cfg
	img := v.src.Image
	for _, op := range v.Recipe.Ops {
		var err error
		in := img.Bounds()
		switch op {
		case OpDeskew:
			var angle float64
			img, angle, err = utils.Deskew(img)
			if err == nil && angle != 0 {
				v.inverse = append(v.inverse, rotationInverse(angle, in.Dx(), in.Dy(), img.Bounds().Dx(), img.Bounds().Dy()))
			}
		case OpContrast:
			img, err = utils.Contrast(img, cfg.ContrastPercent)
		case OpOtsu:
			img, err = utils.OtsuThreshold(img)
		case OpGrayscale:
			img, err = utils.Grayscale(img)
		case OpDenoise:
			img, err = utils.Denoise(img, cfg.DenoiseSigma)
		case OpAdaptive:
			img, err = utils.AdaptiveThreshold(img, cfg.AdaptiveWindow, cfg.AdaptiveOffset)
		case OpSharpen:
			img, err = utils.Sharpen(img, cfg.SharpenSigma)
		case OpUpscale:
			img, err = utils.Upscale(img, 2)
			if err == nil {
				v.inverse = append(v.inverse, func(x, y float64) (float64, float64) { return x / 2, y / 2 })
			}
		case OpROICrop:
			if v.zone == nil {
				continue
			}
			var off image.Point
			img, off, err = utils.CropRelative(img, v.zone.X0, v.zone.Y0, v.zone.X1, v.zone.Y1, cfg.ROIPadding)
			if err == nil {
				dx, dy := float64(off.X), float64(off.Y)
				v.inverse = append(v.inverse, func(x, y float64) (float64, float64) { return x + dx, y + dy })
			}
		default:
			err = fmt.Errorf("unknown op %q", op)
		}
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Recipe.Name, err)
		}
	}
	return img, nil
}

// ToSource maps a box in variant pixels back onto the Source, clamped to its bounds.
// Render must have succeeded first.
func (v *Variant) ToSource(b domain.Box) domain.Box {
	if len(v.inverse) == 0 {
		return clampBox(b, v.src.Width(), v.src.Height())
	}
	corners := [4][2]float64{
		{float64(b.X), float64(b.Y)},
		{float64(b.X + b.W), float64(b.Y)},
		{float64(b.X), float64(b.Y + b.H)},
		{float64(b.X + b.W), float64(b.Y + b.H)},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := c[0], c[1]
		for i := len(v.inverse) - 1; i >= 0; i-- {
			x, y = v.inverse[i](x, y)
		}
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	out := domain.Box{
		X: int(math.Floor(minX)),
		Y: int(math.Floor(minY)),
		W: int(math.Ceil(maxX - math.Floor(minX))),
		H: int(math.Ceil(maxY - math.Floor(minY))),
	}
	return clampBox(out, v.src.Width(), v.src.Height())
}

// rotationInverse maps points on a canvas rotated counter-clockwise by angle
// degrees back onto the unrotated canvas. Both canvases share their centre.
func rotationInverse(angle float64, inW, inH, outW, outH int) func(x, y float64) (float64, float64) {
	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	icx, icy := float64(inW)/2, float64(inH)/2
	ocx, ocy := float64(outW)/2, float64(outH)/2
	return func(x, y float64) (float64, float64) {
		dx, dy := x-ocx, y-ocy
		return dx*cos-dy*sin + icx, dx*sin + dy*cos + icy
	}
}

func clampBox(b domain.Box, w, h int) domain.Box {
	x0, y0 := min(max(0, b.X), w), min(max(0, b.Y), h)
	x1, y1 := min(w, b.X+b.W), min(h, b.Y+b.H)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	return domain.Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
