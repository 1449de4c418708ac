// Package pipeline runs documents through decode, extraction, fallback,
// validation and verification, and commits the result.
package pipeline

import (
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/kycscan/internal/audit"
	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/extractor"
	"github.com/MeKo-Tech/kycscan/internal/fallback"
	"github.com/MeKo-Tech/kycscan/internal/files"
	"github.com/MeKo-Tech/kycscan/internal/preprocess"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"github.com/MeKo-Tech/kycscan/internal/storage"
	"github.com/MeKo-Tech/kycscan/internal/validator"
	"github.com/MeKo-Tech/kycscan/internal/verification"
)

// Config holds configuration for the pipeline and its stages.
type Config struct {
	Preprocess  preprocess.Config
	Extraction  extractor.Config
	Recognition recognizer.Config
	// Workers bounds concurrent documents in RunMany (0 = runtime.NumCPU()).
	Workers int
	// RequiredCategories are the KYC categories each customer must satisfy.
	RequiredCategories []domain.DocumentType
}

// DefaultConfig returns a default pipeline config with stage defaults.
func DefaultConfig() Config {
	return Config{
		Preprocess:         preprocess.DefaultConfig(),
		Extraction:         extractor.DefaultConfig(),
		Recognition:        recognizer.Config{Timeout: recognizer.DefaultTimeout},
		Workers:            runtime.NumCPU(),
		RequiredCategories: verification.DefaultRequiredCategories,
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg        Config
	engine     recognizer.Engine
	profiles   *doctype.Registry
	strategies *extractor.Registry
	store      storage.Store
	files      files.Store
	sink       audit.Sink
	now        func() time.Time
	newID      func() string
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder {
	return &Builder{
		cfg:   DefaultConfig(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithEngine sets the OCR engine.
func (b *Builder) WithEngine(e recognizer.Engine) *Builder {
	b.engine = e
	return b
}

// WithProfiles sets the document-type registry (default: embedded profiles).
func (b *Builder) WithProfiles(r *doctype.Registry) *Builder {
	b.profiles = r
	return b
}

// WithStrategies sets the extraction strategy registry.
func (b *Builder) WithStrategies(r *extractor.Registry) *Builder {
	b.strategies = r
	return b
}

// WithStore sets the storage collaborator.
func (b *Builder) WithStore(s storage.Store) *Builder {
	b.store = s
	return b
}

// WithFiles sets the file collaborator.
func (b *Builder) WithFiles(f files.Store) *Builder {
	b.files = f
	return b
}

// WithAuditSink sets where audit entries go (default: slog).
func (b *Builder) WithAuditSink(s audit.Sink) *Builder {
	b.sink = s
	return b
}

// WithWorkers sets the number of documents processed concurrently by RunMany.
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Workers = n
	}
	return b
}

// WithRecognitionTimeout bounds each OCR engine call.
func (b *Builder) WithRecognitionTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.Recognition.Timeout = d
	}
	return b
}

// WithConcurrentVariants lets a field's variants be recognized concurrently.
func (b *Builder) WithConcurrentVariants(n int) *Builder {
	if n > 0 {
		b.cfg.Extraction.ConcurrentVariants = n
	}
	return b
}

// WithRankingWeights sets the confidence and match-strength exponents.
func (b *Builder) WithRankingWeights(confidence, strength float64) *Builder {
	if confidence > 0 {
		b.cfg.Extraction.ConfidenceWeight = confidence
	}
	if strength > 0 {
		b.cfg.Extraction.StrengthWeight = strength
	}
	return b
}

// WithRequiredCategories sets the KYC categories each customer must satisfy.
func (b *Builder) WithRequiredCategories(c []domain.DocumentType) *Builder {
	if len(c) > 0 {
		b.cfg.RequiredCategories = c
	}
	return b
}

// WithClock overrides the time source used for records and date rules.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// WithIDGenerator overrides id generation for documents and records.
func (b *Builder) WithIDGenerator(fn func() string) *Builder {
	if fn != nil {
		b.newID = fn
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the required collaborators are present.
func (b *Builder) Validate() error {
	if b.engine == nil {
		return errors.New("pipeline: OCR engine is not set")
	}
	if b.store == nil {
		return errors.New("pipeline: store is not set")
	}
	if b.files == nil {
		return errors.New("pipeline: file store is not set")
	}
	if b.cfg.Recognition.Timeout < 0 {
		return errors.New("pipeline: recognition timeout must be >= 0")
	}
	return nil
}

// Pipeline wires the stages together. It is safe for concurrent use; all
// per-document state lives in the RunContext and the extraction session.
type Pipeline struct {
	cfg        Config
	pre        *preprocess.Preprocessor
	adapter    *recognizer.Adapter
	extractor  *extractor.Extractor
	fallback   *fallback.Controller
	validator  *validator.Validator
	profiles   *doctype.Registry
	strategies *extractor.Registry
	store      storage.Store
	files      files.Store
	service    *verification.Service
	now        func() time.Time
	newID      func() string
}

// Build initializes the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	profiles := b.profiles
	if profiles == nil {
		profiles = doctype.Default()
	}
	strategies := b.strategies
	if strategies == nil {
		strategies = extractor.DefaultRegistry()
	}
	if b.cfg.Workers <= 0 {
		b.cfg.Workers = runtime.NumCPU()
	}

	pre := preprocess.New(b.cfg.Preprocess)
	adapter := recognizer.NewAdapter(b.engine, b.cfg.Recognition)
	ex := extractor.New(b.cfg.Extraction, pre, adapter)

	return &Pipeline{
		cfg:        b.cfg,
		pre:        pre,
		adapter:    adapter,
		extractor:  ex,
		fallback:   fallback.NewController(ex),
		validator:  validator.New().WithClock(b.now),
		profiles:   profiles,
		strategies: strategies,
		store:      b.store,
		files:      b.files,
		service: verification.NewService(b.store, profiles, b.sink,
			verification.WithClock(b.now),
			verification.WithIDGenerator(b.newID),
			verification.WithRequiredCategories(b.cfg.RequiredCategories)),
		now:   b.now,
		newID: b.newID,
	}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Profiles returns the document-type registry in use.
func (p *Pipeline) Profiles() *doctype.Registry { return p.profiles }

// Service returns the verification service for read-side queries.
func (p *Pipeline) Service() *verification.Service { return p.service }

// Store returns the storage collaborator.
func (p *Pipeline) Store() storage.Store { return p.store }
