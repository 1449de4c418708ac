package storage

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

type memState struct {
	documents     map[string]domain.Document
	extractions   map[string]domain.ExtractionOutcome
	verifications []domain.VerificationRecord
	kyc           map[string]domain.KycStatus
}

func newMemState() *memState {
	return &memState{
		documents:   make(map[string]domain.Document),
		extractions: make(map[string]domain.ExtractionOutcome),
		kyc:         make(map[string]domain.KycStatus),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		documents:     maps.Clone(s.documents),
		extractions:   maps.Clone(s.extractions),
		verifications: slices.Clone(s.verifications),
		kyc:           maps.Clone(s.kyc),
	}
}

// Memory is an in-process Store. Transactions work on a copy of the state
// that replaces the original only when fn succeeds.
type Memory struct {
	txMu  *sync.Mutex // serializes writers and transactions
	mu    sync.RWMutex
	state *memState

	faults *faults
}

type faults struct {
	mu  sync.Mutex
	err map[string]error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		txMu:   &sync.Mutex{},
		state:  newMemState(),
		faults: &faults{err: make(map[string]error)},
	}
}

// FailOn makes the named operation (e.g. "UpsertKycStatus") return err until
// cleared with a nil error. Used to exercise rollback paths.
func (m *Memory) FailOn(op string, err error) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	if err == nil {
		delete(m.faults.err, op)
		return
	}
	m.faults.err[op] = err
}

func (m *Memory) fault(op string) error {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	return m.faults.err[op]
}

func (m *Memory) read(fn func(s *memState)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.state)
}

func (m *Memory) write(op string, fn func(s *memState) error) error {
	if err := m.fault(op); err != nil {
		return err
	}
	if m.txMu != nil {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

// GetDocument implements Store.
func (m *Memory) GetDocument(_ context.Context, id string) (domain.Document, error) {
	var (
		doc domain.Document
		ok  bool
	)
	m.read(func(s *memState) { doc, ok = s.documents[id] })
	if !ok {
		return domain.Document{}, notFound("document", id)
	}
	return doc, nil
}

// ListCustomerDocuments implements Store. Documents come back in upload order.
func (m *Memory) ListCustomerDocuments(_ context.Context, customerID string) ([]domain.Document, error) {
	var out []domain.Document
	m.read(func(s *memState) {
		for _, d := range s.documents {
			if d.CustomerID == customerID {
				out = append(out, d)
			}
		}
	})
	slices.SortStableFunc(out, func(a, b domain.Document) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

// SaveDocument implements Store.
func (m *Memory) SaveDocument(_ context.Context, doc domain.Document) error {
	return m.write("SaveDocument", func(s *memState) error {
		s.documents[doc.ID] = doc
		return nil
	})
}

// UpdateDocumentState implements Store.
func (m *Memory) UpdateDocumentState(_ context.Context, id string, state domain.DocumentState) error {
	return m.write("UpdateDocumentState", func(s *memState) error {
		doc, ok := s.documents[id]
		if !ok {
			return notFound("document", id)
		}
		doc.State = state
		s.documents[id] = doc
		return nil
	})
}

// SaveExtraction implements Store. Only the latest outcome per document is kept.
func (m *Memory) SaveExtraction(_ context.Context, outcome domain.ExtractionOutcome) error {
	return m.write("SaveExtraction", func(s *memState) error {
		s.extractions[outcome.DocumentID] = outcome
		return nil
	})
}

// LatestExtraction implements Store.
func (m *Memory) LatestExtraction(_ context.Context, documentID string) (domain.ExtractionOutcome, error) {
	var (
		out domain.ExtractionOutcome
		ok  bool
	)
	m.read(func(s *memState) { out, ok = s.extractions[documentID] })
	if !ok {
		return domain.ExtractionOutcome{}, notFound("extraction", documentID)
	}
	return out, nil
}

// AppendVerification implements Store.
func (m *Memory) AppendVerification(_ context.Context, rec domain.VerificationRecord) error {
	return m.write("AppendVerification", func(s *memState) error {
		s.verifications = append(s.verifications, rec)
		return nil
	})
}

// ListVerifications implements Store.
func (m *Memory) ListVerifications(_ context.Context, documentID string) ([]domain.VerificationRecord, error) {
	var out []domain.VerificationRecord
	m.read(func(s *memState) {
		for _, r := range s.verifications {
			if r.DocumentID == documentID {
				out = append(out, r)
			}
		}
	})
	return out, nil
}

// ListCustomerVerifications implements Store.
func (m *Memory) ListCustomerVerifications(_ context.Context, customerID string) ([]domain.VerificationRecord, error) {
	var out []domain.VerificationRecord
	m.read(func(s *memState) {
		for _, r := range s.verifications {
			if r.CustomerID == customerID {
				out = append(out, r)
			}
		}
	})
	return out, nil
}

// GetKycStatus implements Store.
func (m *Memory) GetKycStatus(_ context.Context, customerID string) (domain.KycStatus, error) {
	var (
		st domain.KycStatus
		ok bool
	)
	m.read(func(s *memState) { st, ok = s.kyc[customerID] })
	if !ok {
		return domain.KycStatus{}, notFound("kyc status", customerID)
	}
	st.Documents = maps.Clone(st.Documents)
	return st, nil
}

// UpsertKycStatus implements Store.
func (m *Memory) UpsertKycStatus(_ context.Context, status domain.KycStatus) error {
	return m.write("UpsertKycStatus", func(s *memState) error {
		status.Documents = maps.Clone(status.Documents)
		s.kyc[status.CustomerID] = status
		return nil
	})
}

// LockCustomer implements Store. Memory transactions are already serialized.
func (m *Memory) LockCustomer(context.Context, string) error { return nil }

// RunInTx implements Store.
func (m *Memory) RunInTx(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.txMu == nil {
		// already inside a transaction
		return fn(m)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	staged := m.state.clone()
	m.mu.RUnlock()

	tx := &Memory{state: staged, faults: m.faults}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = staged
	m.mu.Unlock()
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
