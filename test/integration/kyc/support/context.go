// Package support holds the state and step definitions of the verification
// feature suite. Each scenario runs the real HTTP API over a real pipeline;
// only the OCR engine is scripted, and it is still reached over HTTP.
package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/kycscan/internal/audit"
	"github.com/MeKo-Tech/kycscan/internal/config"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/files"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/server"
	"github.com/MeKo-Tech/kycscan/internal/storage"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	t *testing.T

	cfg      *config.Config
	engine   *testutil.ScriptedEngine
	sink     *audit.MemorySink
	api      *httptest.Server
	closeAPI func()

	documents map[string]domain.Document

	LastStatus int
	LastBody   []byte
	LastVerify *server.VerifyResponse
}

// NewTestContext creates a scenario context bound to t.
func NewTestContext(t *testing.T) *TestContext {
	cfg := config.DefaultConfig()
	cfg.Files.Root = t.TempDir()
	cfg.Batch.Workers = 2
	return &TestContext{
		t:         t,
		cfg:       &cfg,
		engine:    testutil.NewScriptedEngine(nil),
		sink:      &audit.MemorySink{},
		documents: make(map[string]domain.Document),
	}
}

// ensureAPI wires the service on first use so that policy steps can still
// change the configuration.
func (c *TestContext) ensureAPI() error {
	if c.api != nil {
		return nil
	}
	engineSrv := testutil.NewEngineServer(c.t, c.engine)
	engCfg := c.cfg.ToEngineConfig()
	engCfg.URL = engineSrv.URL
	engine, err := recognizer.NewHTTPEngine(engCfg, engineSrv.Client())
	if err != nil {
		return err
	}
	local, err := files.NewLocal(c.cfg.Files.Root)
	if err != nil {
		return err
	}
	profiles, err := c.cfg.Profiles()
	if err != nil {
		return err
	}
	pl, err := pipeline.NewBuilder().
		WithConfig(c.cfg.ToPipelineConfig()).
		WithEngine(engine).
		WithProfiles(profiles).
		WithStore(storage.NewMemory()).
		WithFiles(local).
		WithAuditSink(c.sink).
		Build()
	if err != nil {
		return err
	}
	c.api = httptest.NewServer(server.NewServer(c.cfg.ToServerConfig("integration"), pl).Router())
	c.closeAPI = c.api.Close
	return nil
}

// Cleanup stops the API server.
func (c *TestContext) Cleanup() {
	if c.closeAPI != nil {
		c.closeAPI()
	}
}

func (c *TestContext) document(name string) (domain.Document, error) {
	doc, ok := c.documents[name]
	if !ok {
		return domain.Document{}, fmt.Errorf("no document named %q was uploaded", name)
	}
	return doc, nil
}

// do sends a request and records status and body.
func (c *TestContext) do(req *http.Request) error {
	resp, err := c.api.Client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	c.LastStatus = resp.StatusCode
	c.LastBody, err = io.ReadAll(resp.Body)
	return err
}

func (c *TestContext) get(path string) error {
	if err := c.ensureAPI(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, c.api.URL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *TestContext) post(path string) error {
	if err := c.ensureAPI(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.api.URL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *TestContext) postMultipart(path string, fields map[string]string, fileName string, data []byte) error {
	if err := c.ensureAPI(); err != nil {
		return err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if data != nil {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.api.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *TestContext) decode(v any) error {
	if err := json.Unmarshal(c.LastBody, v); err != nil {
		return fmt.Errorf("invalid JSON response (status %d): %w: %s", c.LastStatus, err, c.LastBody)
	}
	return nil
}
