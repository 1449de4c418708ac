package verification

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/kycscan/internal/audit"
	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/storage"
)

const lockShards = 64

// Service commits verdicts. Each commit appends the verification record,
// stores the extraction outcome, moves the document state and upserts the
// customer's KYC row in a single transaction.
type Service struct {
	store    storage.Store
	profiles ProfileLookup
	sink     audit.Sink
	required []domain.DocumentType
	now      func() time.Time
	newID    func() string

	shards [lockShards]sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithRequiredCategories sets the KYC categories every customer must satisfy.
func WithRequiredCategories(c []domain.DocumentType) Option {
	return func(s *Service) {
		if len(c) > 0 {
			s.required = append([]domain.DocumentType(nil), c...)
		}
	}
}

// NewService creates a Service. A nil sink logs audit entries with slog.
func NewService(store storage.Store, profiles ProfileLookup, sink audit.Sink, opts ...Option) *Service {
	if sink == nil {
		sink = audit.LogSink{}
	}
	s := &Service{
		store:    store,
		profiles: profiles,
		sink:     sink,
		required: DefaultRequiredCategories,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RequiredCategories returns the configured KYC categories.
func (s *Service) RequiredCategories() []domain.DocumentType {
	return append([]domain.DocumentType(nil), s.required...)
}

func (s *Service) lock(customerID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	m := &s.shards[h.Sum32()%lockShards]
	m.Lock()
	return m.Unlock
}

// Submission is everything needed to commit one pipeline run.
type Submission struct {
	Run      domain.RunContext
	Document domain.Document
	Outcome  domain.ExtractionOutcome
	Verdict  Verdict
	// Action is the audit action, audit.ActionVerify or audit.ActionResubmit.
	Action string
}

// Commit persists a submission all-or-nothing and emits the audit entry once
// the transaction is durable. Audit failures are logged, not returned.
func (s *Service) Commit(ctx context.Context, sub Submission) (domain.VerificationRecord, domain.KycStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.VerificationRecord{}, domain.KycStatus{}, err
	}
	unlock := s.lock(sub.Document.CustomerID)
	defer unlock()

	now := s.now()
	rec := domain.VerificationRecord{
		ID:           s.newID(),
		DocumentID:   sub.Document.ID,
		CustomerID:   sub.Document.CustomerID,
		DocumentType: sub.Document.Type,
		Status:       sub.Verdict.Status,
		Score:        sub.Verdict.Score,
		Reasons:      sub.Verdict.Reasons,
		FallbackMode: sub.Outcome.FallbackMode,
		CreatedAt:    now,
	}
	state := domain.DocumentCompleted
	if isUnreadable(sub.Verdict) {
		state = domain.DocumentFailed
	}

	var kyc domain.KycStatus
	err := s.store.RunInTx(ctx, func(tx storage.Store) error {
		if err := tx.LockCustomer(ctx, rec.CustomerID); err != nil {
			return err
		}
		if err := tx.SaveExtraction(ctx, sub.Outcome); err != nil {
			return fmt.Errorf("save extraction: %w", err)
		}
		if err := tx.AppendVerification(ctx, rec); err != nil {
			return fmt.Errorf("append verification: %w", err)
		}
		if err := tx.UpdateDocumentState(ctx, rec.DocumentID, state); err != nil {
			return fmt.Errorf("update document state: %w", err)
		}
		var err error
		kyc, err = s.recompute(ctx, tx, rec.CustomerID, now)
		if err != nil {
			return err
		}
		if err := tx.UpsertKycStatus(ctx, kyc); err != nil {
			return fmt.Errorf("upsert kyc status: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.VerificationRecord{}, domain.KycStatus{}, err
	}

	action := sub.Action
	if action == "" {
		action = audit.ActionVerify
	}
	if err := s.sink.Emit(context.WithoutCancel(ctx), audit.FromRecord(action, sub.Run.RequestID, rec)); err != nil {
		slog.Warn("Audit emission failed", "document_id", rec.DocumentID, "record_id", rec.ID, "error", err)
	}
	slog.Info("Verification committed",
		"document_id", rec.DocumentID,
		"customer_id", rec.CustomerID,
		"status", rec.Status,
		"score", rec.Score,
		"fallback_mode", rec.FallbackMode,
		"kyc_state", kyc.State,
		"completion", kyc.Completion)
	return rec, kyc, nil
}

// Register stores a newly uploaded document and refreshes the customer's KYC
// row, which moves a NOT_STARTED customer to IN_PROGRESS.
func (s *Service) Register(ctx context.Context, doc domain.Document) (domain.KycStatus, error) {
	if doc.State == "" {
		doc.State = domain.DocumentUploaded
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = s.now()
	}
	unlock := s.lock(doc.CustomerID)
	defer unlock()

	var kyc domain.KycStatus
	err := s.store.RunInTx(ctx, func(tx storage.Store) error {
		if err := tx.LockCustomer(ctx, doc.CustomerID); err != nil {
			return err
		}
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return fmt.Errorf("save document: %w", err)
		}
		var err error
		kyc, err = s.recompute(ctx, tx, doc.CustomerID, s.now())
		if err != nil {
			return err
		}
		return tx.UpsertKycStatus(ctx, kyc)
	})
	return kyc, err
}

// Status returns the customer's KYC status computed from the current store
// contents. It does not write.
func (s *Service) Status(ctx context.Context, customerID string) (domain.KycStatus, error) {
	return s.recompute(ctx, s.store, customerID, s.now())
}

// CheckResubmittable returns domain.ErrNotResubmittable unless the document's
// latest verification record is REJECTED.
func (s *Service) CheckResubmittable(ctx context.Context, documentID string) error {
	recs, err := s.store.ListVerifications(ctx, documentID)
	if err != nil {
		return err
	}
	if len(recs) == 0 || recs[len(recs)-1].Status != domain.StatusRejected {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotResubmittable)
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, st storage.Store, customerID string, now time.Time) (domain.KycStatus, error) {
	docs, err := st.ListCustomerDocuments(ctx, customerID)
	if err != nil {
		return domain.KycStatus{}, fmt.Errorf("list documents: %w", err)
	}
	recs, err := st.ListCustomerVerifications(ctx, customerID)
	if err != nil {
		return domain.KycStatus{}, fmt.Errorf("list verifications: %w", err)
	}
	return ComputeKyc(customerID, s.required, s.profiles, docs, recs, now), nil
}

func isUnreadable(v Verdict) bool {
	for _, r := range v.Reasons {
		if r.Code == domain.IssueUnreadableDocument {
			return true
		}
	}
	return false
}

