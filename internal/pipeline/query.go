package pipeline

import (
	"context"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Document returns a stored document.
func (p *Pipeline) Document(ctx context.Context, documentID string) (domain.Document, error) {
	return p.store.GetDocument(ctx, documentID)
}

// Verifications returns a document's verification trail, oldest first.
func (p *Pipeline) Verifications(ctx context.Context, documentID string) ([]domain.VerificationRecord, error) {
	if _, err := p.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return p.store.ListVerifications(ctx, documentID)
}

// Extraction returns the latest extraction outcome of a document.
func (p *Pipeline) Extraction(ctx context.Context, documentID string) (domain.ExtractionOutcome, error) {
	return p.store.LatestExtraction(ctx, documentID)
}

// KycStatus returns the customer's current KYC state, computed from the
// stored documents and records.
func (p *Pipeline) KycStatus(ctx context.Context, customerID string) (domain.KycStatus, error) {
	return p.service.Status(ctx, customerID)
}
