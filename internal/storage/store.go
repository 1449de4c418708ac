// Package storage persists documents, extraction outcomes, the append-only
// verification trail and the per-customer KYC row.
package storage

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Store is the relational collaborator the pipeline reads from and writes to.
// Lookups of missing rows return an error wrapping domain.ErrNotFound.
type Store interface {
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	ListCustomerDocuments(ctx context.Context, customerID string) ([]domain.Document, error)
	SaveDocument(ctx context.Context, doc domain.Document) error
	UpdateDocumentState(ctx context.Context, id string, state domain.DocumentState) error

	SaveExtraction(ctx context.Context, outcome domain.ExtractionOutcome) error
	LatestExtraction(ctx context.Context, documentID string) (domain.ExtractionOutcome, error)

	// AppendVerification adds a record; existing records are never changed.
	AppendVerification(ctx context.Context, rec domain.VerificationRecord) error
	// ListVerifications returns a document's records, oldest first.
	ListVerifications(ctx context.Context, documentID string) ([]domain.VerificationRecord, error)
	// ListCustomerVerifications returns all of a customer's records, oldest first.
	ListCustomerVerifications(ctx context.Context, customerID string) ([]domain.VerificationRecord, error)

	GetKycStatus(ctx context.Context, customerID string) (domain.KycStatus, error)
	UpsertKycStatus(ctx context.Context, status domain.KycStatus) error

	// LockCustomer serializes KYC recomputation for a customer until the
	// surrounding transaction ends.
	LockCustomer(ctx context.Context, customerID string) error
	// RunInTx runs fn against a transactional view. Either every write made
	// through tx is applied or none is.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
}
