package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/audit"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/extractor"
	"github.com/MeKo-Tech/kycscan/internal/utils"
	"github.com/MeKo-Tech/kycscan/internal/verification"
)

// Analysis is the side-effect-free part of a run: everything up to and
// including the verdict, nothing written.
type Analysis struct {
	Outcome  domain.ExtractionOutcome `json:"outcome"`
	Verdict  verification.Verdict     `json:"verdict"`
	Fallback bool                     `json:"fallback_ran"`
	Image    utils.ImageQuality       `json:"image"`
	// DecodeError is set when the upload could not be decoded at all.
	DecodeError error `json:"-"`

	Processing struct {
		DecodeNs     int64 `json:"decode_ns"`
		ExtractionNs int64 `json:"extraction_ns"`
		FallbackNs   int64 `json:"fallback_ns"`
		ValidationNs int64 `json:"validation_ns"`
		TotalNs      int64 `json:"total_ns"`
	} `json:"processing"`
}

// Result is a committed run.
type Result struct {
	Document domain.Document           `json:"document"`
	Analysis *Analysis                 `json:"analysis"`
	Record   domain.VerificationRecord `json:"record"`
	Kyc      domain.KycStatus          `json:"kyc"`
}

// Analyze runs decode, extraction, the fallback pass, validation and
// aggregation over raw document bytes. It returns an error only for
// cancellation, unknown document types or strategies, and aggregation
// inconsistencies; unreadable input produces a REJECTED verdict instead.
func (p *Pipeline) Analyze(ctx context.Context, rc domain.RunContext, docType domain.DocumentType, data []byte) (*Analysis, error) {
	start := time.Now()
	profile, err := p.profiles.Get(docType)
	if err != nil {
		return nil, err
	}
	strategy, err := p.strategies.Select(profile, rc.StrategyTag)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := &Analysis{}
	defer func() { a.Processing.TotalNs = time.Since(start).Nanoseconds() }()

	t := time.Now()
	src, err := p.pre.Decode(data)
	a.Processing.DecodeNs = observe("decode", t)
	if err != nil {
		var decodeErr *domain.ImageDecodeError
		if !errors.As(err, &decodeErr) {
			return nil, err
		}
		slog.Warn("Document could not be decoded", "document_id", rc.DocumentID, "error", err)
		a.DecodeError = err
		a.Outcome = p.outcome(rc, docType, nil, false, strategy.Tag(), 0)
		a.Verdict = verification.Unreadable()
		return a, nil
	}

	a.Image = src.Quality

	vocab := profile.Vocabulary()
	if len(vocab) == 0 {
		// nothing to read; a decodable image is all that is asked
		a.Outcome = p.outcome(rc, docType, nil, true, strategy.Tag(), 0)
		a.Verdict, err = verification.Aggregate(profile, a.Outcome)
		return a, err
	}

	sess := extractor.NewSession(src, rc)
	t = time.Now()
	strict, err := p.extractor.Extract(ctx, sess, profile, strategy, vocab, false)
	a.Processing.ExtractionNs = observe("extraction", t)
	if err != nil {
		return nil, err
	}

	t = time.Now()
	fb, err := p.fallback.Apply(ctx, sess, profile, strategy, strict)
	a.Processing.FallbackNs = observe("fallback", t)
	if err != nil {
		return nil, err
	}
	if fb.Ran {
		a.Fallback = true
		fallbackPasses.WithLabelValues(string(docType)).Inc()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// unreadable only when no variant, relaxed ones included, produced tokens
	if !sess.Usable() {
		slog.Warn("No variant produced usable tokens", "document_id", rc.DocumentID,
			"recognition_calls", sess.Calls(), "failed_variants", sess.Failures(), "fallback_ran", fb.Ran,
			"mean_luma", src.Quality.MeanLuma)
		a.Outcome = p.outcome(rc, docType, nil, false, strategy.Tag(), sess.Calls())
		a.Verdict = verification.Unreadable()
		return a, nil
	}

	t = time.Now()
	results := p.validator.ValidateAll(profile, fb.Candidates)
	success := true
	for _, f := range profile.Required {
		if fb.Candidates[f] == nil {
			success = false
			break
		}
	}
	a.Outcome = p.outcome(rc, docType, results, success, strategy.Tag(), sess.Calls())
	a.Verdict, err = verification.Aggregate(profile, a.Outcome)
	a.Processing.ValidationNs = observe("validation", t)
	if err != nil {
		slog.Error("Aggregation inconsistency", "document_id", rc.DocumentID, "error", err)
		return nil, err
	}
	return a, nil
}

func (p *Pipeline) outcome(rc domain.RunContext, docType domain.DocumentType, results []domain.FieldResult,
	success bool, strategy string, calls int,
) domain.ExtractionOutcome {
	o := domain.NewExtractionOutcome(rc.DocumentID, docType, results, success, p.now())
	o.Strategy = strategy
	o.RecognitionCalls = calls
	return o
}

func observe(stage string, start time.Time) int64 {
	d := time.Since(start)
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	return d.Nanoseconds()
}

// Run verifies a stored document and commits the record and KYC update.
// A cancelled run writes nothing.
func (p *Pipeline) Run(ctx context.Context, rc domain.RunContext) (*Result, error) {
	return p.run(ctx, rc, audit.ActionVerify)
}

// Resubmit reruns a document whose latest verdict is REJECTED, appending a new
// record. When data is non-nil it replaces the stored image first.
func (p *Pipeline) Resubmit(ctx context.Context, rc domain.RunContext, data []byte) (*Result, error) {
	if err := p.service.CheckResubmittable(ctx, rc.DocumentID); err != nil {
		return nil, err
	}
	if data != nil {
		doc, err := p.store.GetDocument(ctx, rc.DocumentID)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s-%s", doc.ID, p.now().Format("20060102T150405"))
		ptr, err := p.files.Write(ctx, doc.CustomerID, name, data)
		if err != nil {
			return nil, fmt.Errorf("store resubmitted file: %w", err)
		}
		doc.StoragePointer = ptr
		doc.State = domain.DocumentUploaded
		if _, err := p.service.Register(ctx, doc); err != nil {
			return nil, err
		}
	}
	return p.run(ctx, rc, audit.ActionResubmit)
}

func (p *Pipeline) run(ctx context.Context, rc domain.RunContext, action string) (*Result, error) {
	doc, err := p.store.GetDocument(ctx, rc.DocumentID)
	if err != nil {
		return nil, err
	}
	if rc.CustomerID == "" {
		rc.CustomerID = doc.CustomerID
	} else if rc.CustomerID != doc.CustomerID {
		return nil, fmt.Errorf("document %s does not belong to customer %s: %w", doc.ID, rc.CustomerID, domain.ErrNotFound)
	}

	data, err := p.files.Read(ctx, doc.StoragePointer)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}

	a, err := p.Analyze(ctx, rc, doc.Type, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := time.Now()
	rec, kyc, err := p.service.Commit(ctx, verification.Submission{
		Run:      rc,
		Document: doc,
		Outcome:  a.Outcome,
		Verdict:  a.Verdict,
		Action:   action,
	})
	observe("commit", t)
	if err != nil {
		return nil, err
	}

	documentsProcessed.WithLabelValues(string(doc.Type), string(rec.Status)).Inc()
	verificationScore.WithLabelValues(string(doc.Type)).Observe(rec.Score)
	if fresh, err := p.store.GetDocument(ctx, doc.ID); err == nil {
		doc = fresh
	}
	return &Result{Document: doc, Analysis: a, Record: rec, Kyc: kyc}, nil
}

// Upload stores the bytes of a new document and registers it for the
// customer. Verification is a separate step.
func (p *Pipeline) Upload(ctx context.Context, customerID string, docType domain.DocumentType, name string, data []byte) (domain.Document, error) {
	if _, err := p.profiles.Get(docType); err != nil {
		return domain.Document{}, err
	}
	id := p.newID()
	ptr, err := p.files.Write(ctx, customerID, id+"-"+name, data)
	if err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{
		ID:             id,
		CustomerID:     customerID,
		Type:           docType,
		StoragePointer: ptr,
		UploadedAt:     p.now(),
		State:          domain.DocumentUploaded,
	}
	if _, err := p.service.Register(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	slog.Info("Document uploaded", "document_id", doc.ID, "customer_id", customerID, "type", docType)
	return doc, nil
}
