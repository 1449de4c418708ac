package recognizer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

func TestNewHTTPEngine_RequiresURL(t *testing.T) {
	_, err := NewHTTPEngine(HTTPEngineConfig{}, nil)
	assert.Error(t, err)
}

func TestHTTPEngine_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "upscale2x+otsu", r.FormValue("hint"))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "json", r.FormValue("format"))
		f, _, err := r.FormFile("image")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, []byte("png-bytes"), body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ocr":{"width":800,"height":500,"regions":[
			{"box":{"x":10,"y":20,"w":100,"h":30},"text":"RAVI KUMAR","rec_confidence":0.93}]}}`)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(HTTPEngineConfig{URL: srv.URL + "/", Language: "en"}, srv.Client())
	require.NoError(t, err)

	tokens, err := e.Recognize(context.Background(), EngineRequest{Image: []byte("png-bytes"), Hint: "upscale2x+otsu"})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, EngineToken{Text: "RAVI KUMAR", Box: domain.Box{X: 10, Y: 20, W: 100, H: 30}, Confidence: 0.93}, tokens[0])
}

func TestHTTPEngine_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unsupported image", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(HTTPEngineConfig{URL: srv.URL, BreakerMinRequests: 2, BreakerFailureRatio: 0.5}, srv.Client())
	require.NoError(t, err)

	for range 5 {
		_, err := e.Recognize(context.Background(), EngineRequest{Image: []byte("x")})
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
		var se *engineStatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
		assert.Equal(t, "unsupported image", se.Body)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestHTTPEngine_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(HTTPEngineConfig{
		URL:                srv.URL,
		BreakerMinRequests: 3,
		BreakerOpenTimeout: time.Minute,
	}, srv.Client())
	require.NoError(t, err)

	for range 3 {
		_, err := e.Recognize(context.Background(), EngineRequest{Image: []byte("x")})
		require.Error(t, err)
		assert.False(t, IsCircuitOpen(err))
	}

	_, err = e.Recognize(context.Background(), EngineRequest{Image: []byte("x")})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err), "open breaker fails fast")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPEngine_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	e, err := NewHTTPEngine(HTTPEngineConfig{URL: srv.URL}, srv.Client())
	require.NoError(t, err)
	_, err = e.Recognize(context.Background(), EngineRequest{Image: []byte("x")})
	assert.ErrorContains(t, err, "decode ocr engine response")
}

func TestHTTPEngine_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	// unblock the handler before Close waits on it
	defer close(release)

	e, err := NewHTTPEngine(HTTPEngineConfig{URL: srv.URL}, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Recognize(ctx, EngineRequest{Image: []byte("x")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
