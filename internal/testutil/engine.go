package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
)

// ScriptedEngine is a fake OCR engine whose answers are keyed by variant hint.
// A hint matches a script entry exactly or by its recipe name (the part before
// any "[zone]" suffix). Unscripted hints get Default.
type ScriptedEngine struct {
	mu      sync.Mutex
	scripts map[string][]recognizer.EngineToken
	errs    map[string]error
	delays  map[string]time.Duration
	calls   []string

	// Default answers hints that have no script. Nil means no tokens.
	Default []recognizer.EngineToken
}

// NewScriptedEngine creates an engine that answers every hint with tokens.
func NewScriptedEngine(tokens []recognizer.EngineToken) *ScriptedEngine {
	return &ScriptedEngine{
		scripts: make(map[string][]recognizer.EngineToken),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
		Default: tokens,
	}
}

// On scripts the tokens returned for a hint or recipe name.
func (e *ScriptedEngine) On(hint string, tokens []recognizer.EngineToken) *ScriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[hint] = tokens
	return e
}

// Fail makes a hint or recipe name return err.
func (e *ScriptedEngine) Fail(hint string, err error) *ScriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[hint] = err
	return e
}

// Delay makes a hint or recipe name block for d, or until the context ends.
func (e *ScriptedEngine) Delay(hint string, d time.Duration) *ScriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delays[hint] = d
	return e
}

// Recognize implements recognizer.Engine.
func (e *ScriptedEngine) Recognize(ctx context.Context, req recognizer.EngineRequest) ([]recognizer.EngineToken, error) {
	recipe := req.Hint
	if i := strings.IndexByte(recipe, '['); i >= 0 {
		recipe = recipe[:i]
	}

	e.mu.Lock()
	e.calls = append(e.calls, req.Hint)
	delay, hasDelay := lookup(e.delays, req.Hint, recipe)
	err, hasErr := lookup(e.errs, req.Hint, recipe)
	tokens, ok := lookup(e.scripts, req.Hint, recipe)
	if !ok {
		tokens = e.Default
	}
	e.mu.Unlock()

	if hasDelay {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hasErr {
		return nil, err
	}
	return append([]recognizer.EngineToken(nil), tokens...), nil
}

func lookup[T any](m map[string]T, hint, recipe string) (T, bool) {
	if v, ok := m[hint]; ok {
		return v, true
	}
	v, ok := m[recipe]
	return v, ok
}

// Calls returns the hints seen so far, in call order.
func (e *ScriptedEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// CallCount returns how many times the engine was called.
func (e *ScriptedEngine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// Token is shorthand for an engine token.
func Token(text string, x, y, w, h int, conf float64) recognizer.EngineToken {
	return recognizer.EngineToken{Text: text, Box: domain.Box{X: x, Y: y, W: w, H: h}, Confidence: conf}
}

// WithConfidence returns a copy of tokens with every confidence replaced.
func WithConfidence(tokens []recognizer.EngineToken, conf float64) []recognizer.EngineToken {
	out := make([]recognizer.EngineToken, len(tokens))
	for i, t := range tokens {
		t.Confidence = conf
		out[i] = t
	}
	return out
}

// Scaled returns a copy of tokens with boxes multiplied by f, as an engine
// would report them for an upscaled variant.
func Scaled(tokens []recognizer.EngineToken, f int) []recognizer.EngineToken {
	out := make([]recognizer.EngineToken, len(tokens))
	for i, t := range tokens {
		t.Box = domain.Box{X: t.Box.X * f, Y: t.Box.Y * f, W: t.Box.W * f, H: t.Box.H * f}
		out[i] = t
	}
	return out
}

// Without returns tokens minus those whose text is in drop.
func Without(tokens []recognizer.EngineToken, drop ...string) []recognizer.EngineToken {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := make([]recognizer.EngineToken, 0, len(tokens))
	for _, t := range tokens {
		if !skip[t.Text] {
			out = append(out, t)
		}
	}
	return out
}
