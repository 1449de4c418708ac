// Package recognizer adapts an external OCR engine to the pipeline: one call
// per image variant, bounded by a timeout, with normalized tokens mapped back
// to source coordinates.
package recognizer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/utils"
)

// DefaultTimeout bounds a single engine call.
const DefaultTimeout = 10 * time.Second

// EngineRequest is what an engine receives for one variant.
type EngineRequest struct {
	Image  []byte // PNG
	Width  int
	Height int
	Hint   string // variant key, e.g. "deskew+contrast+otsu"
}

// EngineToken is a raw span of text as reported by the engine, in variant pixels.
type EngineToken struct {
	Text       string
	Box        domain.Box
	Confidence float64
}

// Engine is the black-box OCR backend.
type Engine interface {
	Recognize(ctx context.Context, req EngineRequest) ([]EngineToken, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req EngineRequest) ([]EngineToken, error)

// Recognize implements Engine.
func (f EngineFunc) Recognize(ctx context.Context, req EngineRequest) ([]EngineToken, error) {
	return f(ctx, req)
}

// Variant is the part of a preprocessed image the adapter needs.
type Variant interface {
	Key() string
	Render() (image.Image, error)
	ToSource(b domain.Box) domain.Box
}

// Recognition is the adapter output for one variant.
type Recognition struct {
	VariantKey string
	Tokens     []domain.RecognizedToken
	// Confidence is the text-length weighted mean of token confidences.
	Confidence float64
	Duration   time.Duration
}

// Config configures the Adapter.
type Config struct {
	Timeout time.Duration
	// Clean overrides DefaultCleanOptions when set.
	Clean *CleanOptions
}

// Adapter calls the engine exactly once per variant. It never retries;
// trying another variant is the caller's decision.
type Adapter struct {
	engine Engine
	cfg    Config
	clean  CleanOptions
}

// NewAdapter wraps an engine.
func NewAdapter(engine Engine, cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	clean := DefaultCleanOptions()
	if cfg.Clean != nil {
		clean = *cfg.Clean
	}
	return &Adapter{engine: engine, cfg: cfg, clean: clean}
}

// Recognize renders the variant and runs the engine over it. Failures come
// back as *domain.RecognitionError, except cancellation of ctx itself, which
// is returned unwrapped so callers can stop.
func (a *Adapter) Recognize(ctx context.Context, v Variant) (Recognition, error) {
	key := v.Key()
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}

	img, err := v.Render()
	if err != nil {
		recognitionCalls.WithLabelValues(outcomeError).Inc()
		return Recognition{}, &domain.RecognitionError{Recipe: key, Err: err}
	}
	data, err := utils.EncodePNG(img)
	if err != nil {
		recognitionCalls.WithLabelValues(outcomeError).Inc()
		return Recognition{}, &domain.RecognitionError{Recipe: key, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.engine.Recognize(callCtx, EngineRequest{
		Image:  data,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Hint:   key,
	})
	elapsed := time.Since(start)
	recognitionDuration.Observe(elapsed.Seconds())

	if err != nil {
		if ctx.Err() != nil {
			recognitionCalls.WithLabelValues(outcomeCanceled).Inc()
			return Recognition{}, ctx.Err()
		}
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		if timeout {
			recognitionCalls.WithLabelValues(outcomeTimeout).Inc()
		} else {
			recognitionCalls.WithLabelValues(outcomeError).Inc()
		}
		slog.Debug("Recognition failed", "variant", key, "timeout", timeout, "error", err)
		return Recognition{}, &domain.RecognitionError{Recipe: key, Timeout: timeout, Err: err}
	}
	recognitionCalls.WithLabelValues(outcomeOK).Inc()

	rec := Recognition{VariantKey: key, Duration: elapsed}
	var weighted, weight float64
	for _, t := range raw {
		text := PostProcessText(t.Text, a.clean)
		if !ValidateText(text) {
			continue
		}
		conf := clamp01(t.Confidence)
		rec.Tokens = append(rec.Tokens, domain.RecognizedToken{
			Text:       text,
			Box:        v.ToSource(t.Box),
			Confidence: conf,
		})
		n := float64(len([]rune(text)))
		weighted += conf * n
		weight += n
	}
	if weight > 0 {
		rec.Confidence = weighted / weight
	}
	slog.Debug("Recognized variant", "variant", key, "tokens", len(rec.Tokens),
		"confidence", rec.Confidence, "duration_ms", elapsed.Milliseconds())
	return rec, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
