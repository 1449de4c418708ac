package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// HTTPEngineConfig configures the HTTP OCR engine client.
type HTTPEngineConfig struct {
	// URL is the engine base URL; requests go to <URL>/ocr/image.
	URL                     string
	Language                string
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// HTTPEngine talks to an OCR server exposing POST /ocr/image. A circuit
// breaker makes a dead engine fail fast; it never retries a call.
type HTTPEngine struct {
	endpoint string
	language string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[[]EngineToken]
}

// engineStatusError is a non-2xx answer from the engine.
type engineStatusError struct {
	Code int
	Body string
}

func (e *engineStatusError) Error() string {
	return fmt.Sprintf("ocr engine returned %d: %s", e.Code, e.Body)
}

// NewHTTPEngine creates an engine client. A nil client uses http.DefaultClient;
// per-call deadlines come from the context.
func NewHTTPEngine(cfg HTTPEngineConfig, client *http.Client) (*HTTPEngine, error) {
	if cfg.URL == "" {
		return nil, errors.New("ocr engine url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 5
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = 0.6
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}
	if cfg.BreakerHalfOpenMaxCalls == 0 {
		cfg.BreakerHalfOpenMaxCalls = 1
	}

	name := "ocr-engine"
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerHalfOpenMaxCalls,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			// A rejected image says nothing about engine health.
			var se *engineStatusError
			if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
				return true
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	breakerState.WithLabelValues(name).Set(0)

	return &HTTPEngine{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/ocr/image",
		language: cfg.Language,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker[[]EngineToken](settings),
	}, nil
}

// IsCircuitOpen reports whether err was produced by an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Recognize implements Engine.
func (e *HTTPEngine) Recognize(ctx context.Context, req EngineRequest) ([]EngineToken, error) {
	return e.breaker.Execute(func() ([]EngineToken, error) {
		return e.call(ctx, req)
	})
}

// ocrResponse mirrors the JSON shape of the engine's /ocr/image answer.
type ocrResponse struct {
	OCR struct {
		Width   int `json:"width"`
		Height  int `json:"height"`
		Regions []struct {
			Box           struct{ X, Y, W, H int } `json:"box"`
			Text          string                   `json:"text"`
			RecConfidence float64                  `json:"rec_confidence"`
		} `json:"regions"`
	} `json:"ocr"`
}

func (e *HTTPEngine) call(ctx context.Context, req EngineRequest) ([]EngineToken, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "variant.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, err
	}
	fields := map[string]string{"format": "json", "hint": req.Hint}
	if e.language != "" {
		fields["language"] = e.language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocr engine request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &engineStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ocr engine response: %w", err)
	}

	tokens := make([]EngineToken, 0, len(parsed.OCR.Regions))
	for _, r := range parsed.OCR.Regions {
		tokens = append(tokens, EngineToken{
			Text:       r.Text,
			Box:        domain.Box{X: r.Box.X, Y: r.Box.Y, W: r.Box.W, H: r.Box.H},
			Confidence: r.RecConfidence,
		})
	}
	return tokens, nil
}
