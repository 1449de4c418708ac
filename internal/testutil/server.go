package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/recognizer"
)

type engineRegion struct {
	Box struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"box"`
	Text          string  `json:"text"`
	RecConfidence float64 `json:"rec_confidence"`
}

// NewEngineServer serves a scripted engine over the POST /ocr/image protocol
// the HTTP engine client speaks. The server is closed with the test.
func NewEngineServer(t testing.TB, engine *ScriptedEngine) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ocr/image", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		img, _ := io.ReadAll(f)
		_ = f.Close()

		tokens, err := engine.Recognize(r.Context(), recognizer.EngineRequest{Image: img, Hint: r.FormValue("hint")})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		var resp struct {
			OCR struct {
				Regions []engineRegion `json:"regions"`
			} `json:"ocr"`
		}
		resp.OCR.Regions = make([]engineRegion, len(tokens))
		for i, tok := range tokens {
			reg := &resp.OCR.Regions[i]
			reg.Box.X, reg.Box.Y, reg.Box.W, reg.Box.H = tok.Box.X, tok.Box.Y, tok.Box.W, tok.Box.H
			reg.Text = tok.Text
			reg.RecConfidence = tok.Confidence
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
