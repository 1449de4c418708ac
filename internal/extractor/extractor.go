// Package extractor turns recognized tokens into typed field candidates.
// Strategies are swappable and selected per document type by a name@version tag.
package extractor

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/preprocess"
	"github.com/MeKo-Tech/kycscan/internal/recognizer"
	"golang.org/x/sync/errgroup"
)

const scoreEpsilon = 1e-9

// Config holds ranking weights and penalties shared by all strategies.
type Config struct {
	ConfidenceWeight   float64 `mapstructure:"confidence_weight" yaml:"confidence_weight" json:"confidence_weight"`
	StrengthWeight     float64 `mapstructure:"strength_weight" yaml:"strength_weight" json:"strength_weight"`
	OutsideZoneBias    float64 `mapstructure:"outside_zone_bias" yaml:"outside_zone_bias" json:"outside_zone_bias"`
	ExclusionPenalty   float64 `mapstructure:"exclusion_penalty" yaml:"exclusion_penalty" json:"exclusion_penalty"`
	UnlabeledPenalty   float64 `mapstructure:"unlabeled_penalty" yaml:"unlabeled_penalty" json:"unlabeled_penalty"`
	PartialPenalty     float64 `mapstructure:"partial_penalty" yaml:"partial_penalty" json:"partial_penalty"`
	ConcurrentVariants int     `mapstructure:"concurrent_variants" yaml:"concurrent_variants" json:"concurrent_variants"`
}

// DefaultConfig ranks by the plain product of confidence and match strength.
func DefaultConfig() Config {
	return Config{
		ConfidenceWeight:   1,
		StrengthWeight:     1,
		OutsideZoneBias:    0.9,
		ExclusionPenalty:   0.8,
		UnlabeledPenalty:   0.9,
		PartialPenalty:     0.6,
		ConcurrentVariants: 1,
	}
}

// Params derives the strategy parameters for a strict or relaxed pass.
func (c Config) Params(relaxed bool) Params {
	return Params{
		Relaxed:          relaxed,
		ConfidenceWeight: c.ConfidenceWeight,
		StrengthWeight:   c.StrengthWeight,
		OutsideZoneBias:  c.OutsideZoneBias,
		ExclusionPenalty: c.ExclusionPenalty,
		UnlabeledPenalty: c.UnlabeledPenalty,
		PartialPenalty:   c.PartialPenalty,
	}
}

// Recognizer is the part of the recognition adapter the extractor uses.
type Recognizer interface {
	Recognize(ctx context.Context, v recognizer.Variant) (recognizer.Recognition, error)
}

// Extractor runs a strategy over the variants of each field.
type Extractor struct {
	cfg Config
	pre *preprocess.Preprocessor
	rec Recognizer
}

// New creates an Extractor. Zero weights fall back to DefaultConfig.
func New(cfg Config, pre *preprocess.Preprocessor, rec Recognizer) *Extractor {
	def := DefaultConfig()
	if cfg.ConfidenceWeight <= 0 {
		cfg.ConfidenceWeight = def.ConfidenceWeight
	}
	if cfg.StrengthWeight <= 0 {
		cfg.StrengthWeight = def.StrengthWeight
	}
	if cfg.OutsideZoneBias <= 0 {
		cfg.OutsideZoneBias = def.OutsideZoneBias
	}
	if cfg.ExclusionPenalty <= 0 {
		cfg.ExclusionPenalty = def.ExclusionPenalty
	}
	if cfg.UnlabeledPenalty <= 0 {
		cfg.UnlabeledPenalty = def.UnlabeledPenalty
	}
	if cfg.PartialPenalty <= 0 {
		cfg.PartialPenalty = def.PartialPenalty
	}
	if cfg.ConcurrentVariants < 1 {
		cfg.ConcurrentVariants = def.ConcurrentVariants
	}
	return &Extractor{cfg: cfg, pre: pre, rec: rec}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Session carries the per-document recognition cache. Every variant is
// recognized at most once per session, whichever field asks first.
type Session struct {
	Source *preprocess.Source
	Run    domain.RunContext

	mu     sync.Mutex
	pages  map[string]*pageEntry
	calls  atomic.Int64
	failed atomic.Int64
	usable atomic.Bool
}

type pageEntry struct {
	once sync.Once
	page Page
	ok   bool
	err  error
}

// NewSession starts a session over a decoded source.
func NewSession(src *preprocess.Source, rc domain.RunContext) *Session {
	return &Session{Source: src, Run: rc, pages: make(map[string]*pageEntry)}
}

// Calls is the number of recognition adapter invocations so far.
func (s *Session) Calls() int { return int(s.calls.Load()) }

// Failures is the number of variants whose recognition failed.
func (s *Session) Failures() int { return int(s.failed.Load()) }

// Usable reports whether any variant produced at least one token.
func (s *Session) Usable() bool { return s.usable.Load() }

func (s *Session) entry(key string) *pageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pages[key]
	if !ok {
		e = &pageEntry{}
		s.pages[key] = e
	}
	return e
}

// page recognizes a variant once. ok is false when recognition failed; the
// error is only set when ctx was cancelled.
func (e *Extractor) page(ctx context.Context, sess *Session, v *preprocess.Variant) (Page, bool, error) {
	entry := sess.entry(v.Key())
	entry.once.Do(func() {
		sess.calls.Add(1)
		rec, err := e.rec.Recognize(ctx, v)
		if err != nil {
			var recErr *domain.RecognitionError
			if !errors.As(err, &recErr) && ctx.Err() != nil {
				entry.err = err
				return
			}
			sess.failed.Add(1)
			slog.Warn("Recognition failed, trying next variant",
				"document_id", sess.Run.DocumentID, "variant", v.Key(), "error", err)
			return
		}
		if len(rec.Tokens) > 0 {
			sess.usable.Store(true)
		}
		entry.page = Page{
			Variant:        v.Key(),
			Recipe:         v.Recipe.Name,
			Aggressiveness: v.Recipe.Aggressiveness,
			Tokens:         rec.Tokens,
			Width:          sess.Source.Width(),
			Height:         sess.Source.Height(),
		}
		entry.ok = true
	})
	return entry.page, entry.ok, entry.err
}

// Extract resolves the given fields with one strategy. Strict passes use the
// field minimums; relaxed passes use the relaxed minimums plus the extra
// recipes, and tag what they find as fallback candidates with their measured
// confidence untouched. Unresolved fields are absent from the result. The only
// error is cancellation of ctx.
func (e *Extractor) Extract(ctx context.Context, sess *Session, profile *doctype.Profile,
	strategy Strategy, fields []domain.FieldName, relaxed bool,
) (map[domain.FieldName]*domain.FieldCandidate, error) {
	params := e.cfg.Params(relaxed)
	out := make(map[domain.FieldName]*domain.FieldCandidate, len(fields))

	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := profile.Spec(f)
		if spec == nil {
			continue
		}
		best, err := e.extractField(ctx, sess, profile, strategy, spec, params)
		if err != nil {
			return nil, err
		}
		if best == nil {
			slog.Debug("Field unresolved", "document_id", sess.Run.DocumentID,
				"field", f, "relaxed", relaxed)
			continue
		}
		c := best.FieldCandidate
		if relaxed {
			c.Method = domain.MethodFallback
			c.FallbackMode = true
		}
		out[f] = &c
		slog.Debug("Field resolved", "document_id", sess.Run.DocumentID, "field", f,
			"value", c.NormalizedValue, "confidence", c.Confidence, "recipe", c.Recipe, "relaxed", relaxed)
	}
	return out, nil
}

func (e *Extractor) extractField(ctx context.Context, sess *Session, profile *doctype.Profile,
	strategy Strategy, spec *doctype.FieldSpec, params Params,
) (*Candidate, error) {
	variants := e.pre.Variants(sess.Source, spec, params.Relaxed)
	if e.cfg.ConcurrentVariants > 1 {
		if err := e.prefetch(ctx, sess, variants); err != nil {
			return nil, err
		}
	}

	floor := params.MinConfidence(spec)
	var best *Candidate
	for _, v := range variants {
		page, ok, err := e.page(ctx, sess, v)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, c := range strategy.Candidates(profile, spec, page, params) {
			if c.Confidence < floor {
				continue
			}
			c.Recipe = page.Recipe
			c.Aggressiveness = page.Aggressiveness
			if best == nil || better(c, *best) {
				cc := c
				best = &cc
			}
		}
		if best != nil && best.Confidence >= spec.ShortCircuitConfidence {
			break
		}
	}
	return best, nil
}

// prefetch recognizes a field's variants concurrently so the sequential scan
// only reads the cache. Short-circuiting still applies to selection.
func (e *Extractor) prefetch(ctx context.Context, sess *Session, variants []*preprocess.Variant) error {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.ConcurrentVariants)
	for _, v := range variants {
		g.Go(func() error {
			_, _, err := e.page(ctx, sess, v)
			return err
		})
	}
	return g.Wait()
}

// better orders candidates by score, then by the less aggressive variant,
// then by reading order.
func better(a, b Candidate) bool {
	if d := a.Score - b.Score; math.Abs(d) > scoreEpsilon {
		return d > 0
	}
	if a.Aggressiveness != b.Aggressiveness {
		return a.Aggressiveness < b.Aggressiveness
	}
	return a.Order < b.Order
}
