// Package fallback decides when a document gets its single relaxed extraction
// pass and merges the relaxed candidates into the strict ones.
package fallback

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/extractor"
)

// Candidates maps fields to their selected candidate. Unresolved fields are absent.
type Candidates = map[domain.FieldName]*domain.FieldCandidate

// Decision lists the fields that trigger a relaxed pass, in vocabulary order.
// Optional holds unresolved optional fields; they ride along with a relaxed
// pass but never trigger one.
type Decision struct {
	Unresolved    []domain.FieldName
	LowConfidence []domain.FieldName
	Optional      []domain.FieldName
}

// Needed reports whether a relaxed pass should run.
func (d Decision) Needed() bool {
	return len(d.Unresolved) > 0 || len(d.LowConfidence) > 0
}

// Fields returns every field the relaxed pass retries, in vocabulary order.
func (d Decision) Fields(profile *doctype.Profile) []domain.FieldName {
	want := make(map[domain.FieldName]bool, len(d.Unresolved)+len(d.LowConfidence)+len(d.Optional))
	for _, fs := range [][]domain.FieldName{d.Unresolved, d.LowConfidence, d.Optional} {
		for _, f := range fs {
			want[f] = true
		}
	}
	out := make([]domain.FieldName, 0, len(want))
	for _, f := range profile.Vocabulary() {
		if want[f] {
			out = append(out, f)
		}
	}
	return out
}

// Decide inspects a strict pass. A required field without a candidate, or any
// resolved field below its target confidence, triggers the relaxed pass.
func Decide(profile *doctype.Profile, strict Candidates) Decision {
	var d Decision
	for _, f := range profile.Vocabulary() {
		c, ok := strict[f]
		switch {
		case !ok || c == nil:
			if profile.IsRequired(f) {
				d.Unresolved = append(d.Unresolved, f)
			} else {
				d.Optional = append(d.Optional, f)
			}
		case c.Confidence < profile.Spec(f).TargetConfidence:
			d.LowConfidence = append(d.LowConfidence, f)
		}
	}
	return d
}

// Merge applies relaxed candidates. An unresolved field takes its relaxed
// candidate; a low-confidence field takes it only when the relaxed confidence
// is higher. The inputs are not modified.
func Merge(strict, relaxed Candidates, d Decision) Candidates {
	out := make(Candidates, len(strict)+len(d.Unresolved)+len(d.Optional))
	for f, c := range strict {
		out[f] = c
	}
	for _, fs := range [][]domain.FieldName{d.Unresolved, d.Optional} {
		for _, f := range fs {
			if c, ok := relaxed[f]; ok {
				out[f] = c
			}
		}
	}
	for _, f := range d.LowConfidence {
		r, ok := relaxed[f]
		if ok && r.Confidence > out[f].Confidence {
			out[f] = r
		}
	}
	return out
}

// Extractor is the part of the field extractor the controller drives.
type Extractor interface {
	Extract(ctx context.Context, sess *extractor.Session, profile *doctype.Profile,
		strategy extractor.Strategy, fields []domain.FieldName, relaxed bool,
	) (Candidates, error)
}

// Controller runs at most one relaxed pass per document.
type Controller struct {
	ex Extractor
}

// NewController creates a Controller.
func NewController(ex Extractor) *Controller {
	return &Controller{ex: ex}
}

// Result is the outcome of Apply.
type Result struct {
	Candidates Candidates
	Decision   Decision
	Ran        bool
}

// Apply checks the strict candidates and, when needed, runs exactly one
// relaxed pass over the triggering fields. Fields the relaxed pass cannot
// resolve stay unresolved.
func (c *Controller) Apply(ctx context.Context, sess *extractor.Session, profile *doctype.Profile,
	strategy extractor.Strategy, strict Candidates,
) (Result, error) {
	d := Decide(profile, strict)
	if !d.Needed() {
		return Result{Candidates: strict, Decision: d}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	slog.Info("Running relaxed extraction pass",
		"document_id", sess.Run.DocumentID,
		"unresolved", d.Unresolved,
		"low_confidence", d.LowConfidence,
		"optional", d.Optional)

	relaxed, err := c.ex.Extract(ctx, sess, profile, strategy, d.Fields(profile), true)
	if err != nil {
		return Result{}, err
	}
	return Result{Candidates: Merge(strict, relaxed, d), Decision: d, Ran: true}, nil
}
