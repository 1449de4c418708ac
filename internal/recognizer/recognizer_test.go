package recognizer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// halfVariant is a variant rendered at twice the source resolution.
type halfVariant struct {
	key       string
	renderErr error
}

func (v halfVariant) Key() string { return v.key }

func (v halfVariant) Render() (image.Image, error) {
	if v.renderErr != nil {
		return nil, v.renderErr
	}
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(1, 1, color.Gray{Y: 0})
	return img, nil
}

func (v halfVariant) ToSource(b domain.Box) domain.Box {
	return domain.Box{X: b.X / 2, Y: b.Y / 2, W: b.W / 2, H: b.H / 2}
}

func TestAdapter_Recognize(t *testing.T) {
	var got EngineRequest
	engine := EngineFunc(func(_ context.Context, req EngineRequest) ([]EngineToken, error) {
		got = req
		return []EngineToken{
			{Text: "  RAVI\u200B KUMAR ", Box: domain.Box{X: 10, Y: 20, W: 100, H: 30}, Confidence: 0.9},
			{Text: "|||", Box: domain.Box{X: 0, Y: 0, W: 5, H: 5}, Confidence: 0.99},
			{Text: "12/05/1990", Box: domain.Box{X: 10, Y: 60, W: 80, H: 30}, Confidence: 1.4},
		}, nil
	})

	rec, err := NewAdapter(engine, Config{}).Recognize(context.Background(), halfVariant{key: "gray+otsu"})
	require.NoError(t, err)

	assert.Equal(t, "gray+otsu", got.Hint)
	assert.Equal(t, 40, got.Width)
	assert.Equal(t, 20, got.Height)
	assert.NotEmpty(t, got.Image)

	require.Len(t, rec.Tokens, 2, "noise tokens are dropped")
	assert.Equal(t, "RAVI KUMAR", rec.Tokens[0].Text)
	assert.Equal(t, domain.Box{X: 5, Y: 10, W: 50, H: 15}, rec.Tokens[0].Box)
	assert.InDelta(t, 1.0, rec.Tokens[1].Confidence, 1e-9, "confidence is clamped")

	// (0.9*10 + 1.0*10) / 20
	assert.InDelta(t, 0.95, rec.Confidence, 1e-9)
	assert.Equal(t, "gray+otsu", rec.VariantKey)
}

func TestAdapter_EngineError(t *testing.T) {
	boom := errors.New("engine down")
	engine := EngineFunc(func(context.Context, EngineRequest) ([]EngineToken, error) { return nil, boom })

	_, err := NewAdapter(engine, Config{}).Recognize(context.Background(), halfVariant{key: "raw"})
	var recErr *domain.RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "raw", recErr.Recipe)
	assert.False(t, recErr.Timeout)
	assert.ErrorIs(t, err, boom)
}

func TestAdapter_Timeout(t *testing.T) {
	engine := EngineFunc(func(ctx context.Context, _ EngineRequest) ([]EngineToken, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := NewAdapter(engine, Config{Timeout: 10 * time.Millisecond}).
		Recognize(context.Background(), halfVariant{key: "raw"})
	var recErr *domain.RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.True(t, recErr.Timeout)
}

func TestAdapter_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := EngineFunc(func(context.Context, EngineRequest) ([]EngineToken, error) {
		cancel()
		return nil, errors.New("aborted")
	})

	_, err := NewAdapter(engine, Config{}).Recognize(ctx, halfVariant{key: "raw"})
	assert.ErrorIs(t, err, context.Canceled)
	var recErr *domain.RecognitionError
	assert.False(t, errors.As(err, &recErr), "cancellation is not a recognition failure")
}

func TestAdapter_AlreadyCancelled(t *testing.T) {
	calls := 0
	engine := EngineFunc(func(context.Context, EngineRequest) ([]EngineToken, error) {
		calls++
		return nil, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAdapter(engine, Config{}).Recognize(ctx, halfVariant{key: "raw"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestAdapter_RenderError(t *testing.T) {
	engine := EngineFunc(func(context.Context, EngineRequest) ([]EngineToken, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	})

	_, err := NewAdapter(engine, Config{}).Recognize(context.Background(),
		halfVariant{key: "deskew", renderErr: errors.New("bad crop")})
	var recErr *domain.RecognitionError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "deskew", recErr.Recipe)
}

func TestAdapter_NoTokens(t *testing.T) {
	engine := EngineFunc(func(context.Context, EngineRequest) ([]EngineToken, error) { return nil, nil })
	rec, err := NewAdapter(engine, Config{}).Recognize(context.Background(), halfVariant{key: "raw"})
	require.NoError(t, err)
	assert.Empty(t, rec.Tokens)
	assert.Zero(t, rec.Confidence)
}

func TestClamp01(t *testing.T) {
	assert.Zero(t, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(3))
	assert.Equal(t, 0.4, clamp01(0.4))
}
