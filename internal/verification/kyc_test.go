package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

var kycNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func doc(id string, dt domain.DocumentType) domain.Document {
	return domain.Document{ID: id, CustomerID: "c1", Type: dt, UploadedAt: kycNow}
}

func record(docID string, dt domain.DocumentType, st domain.VerificationStatus) domain.VerificationRecord {
	return domain.VerificationRecord{DocumentID: docID, CustomerID: "c1", DocumentType: dt, Status: st}
}

func TestComputeKyc(t *testing.T) {
	reg := doctype.Default()
	required := DefaultRequiredCategories

	tests := []struct {
		name       string
		docs       []domain.Document
		records    []domain.VerificationRecord
		state      domain.KycState
		completion float64
		categories map[domain.DocumentType]domain.KycState
	}{
		{
			name:  "no documents",
			state: domain.KycNotStarted,
			categories: map[domain.DocumentType]domain.KycState{
				domain.DocumentIDProof: domain.KycNotStarted, domain.DocumentAddressProof: domain.KycNotStarted,
			},
		},
		{
			name:       "one verified one in progress",
			docs:       []domain.Document{doc("pan", domain.DocumentPAN), doc("bill", domain.DocumentUtilityBill)},
			records:    []domain.VerificationRecord{record("pan", domain.DocumentPAN, domain.StatusVerified)},
			state:      domain.KycInProgress,
			completion: 0.5,
			categories: map[domain.DocumentType]domain.KycState{
				domain.DocumentIDProof: domain.KycVerified, domain.DocumentAddressProof: domain.KycInProgress,
			},
		},
		{
			name:       "aadhaar satisfies both categories",
			docs:       []domain.Document{doc("a", domain.DocumentAadhaar)},
			records:    []domain.VerificationRecord{record("a", domain.DocumentAadhaar, domain.StatusVerified)},
			state:      domain.KycVerified,
			completion: 1,
		},
		{
			name: "latest record wins after resubmission",
			docs: []domain.Document{doc("a", domain.DocumentAadhaar)},
			records: []domain.VerificationRecord{
				record("a", domain.DocumentAadhaar, domain.StatusRejected),
				record("a", domain.DocumentAadhaar, domain.StatusNeedsReview),
			},
			state:      domain.KycNeedsReview,
			completion: 1,
		},
		{
			name: "rejection after verification",
			docs: []domain.Document{doc("pan", domain.DocumentPAN), doc("bill", domain.DocumentUtilityBill)},
			records: []domain.VerificationRecord{
				record("pan", domain.DocumentPAN, domain.StatusVerified),
				record("bill", domain.DocumentUtilityBill, domain.StatusVerified),
				record("pan", domain.DocumentPAN, domain.StatusRejected),
			},
			state:      domain.KycRejected,
			completion: 0.5,
		},
		{
			name:       "missing category keeps the customer in progress",
			docs:       []domain.Document{doc("p", domain.DocumentPassport)},
			records:    []domain.VerificationRecord{record("p", domain.DocumentPassport, domain.StatusVerified)},
			state:      domain.KycInProgress,
			completion: 0.5,
			categories: map[domain.DocumentType]domain.KycState{
				domain.DocumentIDProof: domain.KycVerified, domain.DocumentAddressProof: domain.KycNotStarted,
			},
		},
		{
			name: "partial is worse than review",
			docs: []domain.Document{doc("pan", domain.DocumentPAN), doc("bill", domain.DocumentUtilityBill)},
			records: []domain.VerificationRecord{
				record("pan", domain.DocumentPAN, domain.StatusNeedsReview),
				record("bill", domain.DocumentUtilityBill, domain.StatusPartiallyVerified),
			},
			state:      domain.KycPartiallyVerified,
			completion: 0.5,
		},
		{
			name: "generic category documents count for themselves",
			docs: []domain.Document{doc("id", domain.DocumentIDProof), doc("addr", domain.DocumentAddressProof)},
			records: []domain.VerificationRecord{
				record("id", domain.DocumentIDProof, domain.StatusVerified),
				record("addr", domain.DocumentAddressProof, domain.StatusVerified),
			},
			state:      domain.KycVerified,
			completion: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ComputeKyc("c1", required, reg, tt.docs, tt.records, kycNow)
			assert.Equal(t, "c1", st.CustomerID)
			assert.Equal(t, tt.state, st.State)
			assert.InDelta(t, tt.completion, st.Completion, 1e-9)
			assert.Equal(t, kycNow, st.UpdatedAt)
			if tt.categories != nil {
				assert.Equal(t, tt.categories, st.Documents)
			}
		})
	}
}

func TestComputeKyc_CompletionNeverDecreasesWithoutRejection(t *testing.T) {
	reg := doctype.Default()
	docs := []domain.Document{doc("pan", domain.DocumentPAN), doc("bill", domain.DocumentUtilityBill), doc("a", domain.DocumentAadhaar)}
	steps := []domain.VerificationRecord{
		record("bill", domain.DocumentUtilityBill, domain.StatusPartiallyVerified),
		record("pan", domain.DocumentPAN, domain.StatusNeedsReview),
		record("bill", domain.DocumentUtilityBill, domain.StatusVerified),
		record("a", domain.DocumentAadhaar, domain.StatusVerified),
		record("pan", domain.DocumentPAN, domain.StatusVerified),
	}

	prev := 0.0
	for i := range steps {
		st := ComputeKyc("c1", DefaultRequiredCategories, reg, docs, steps[:i+1], kycNow)
		assert.GreaterOrEqual(t, st.Completion, prev, "step %d", i)
		prev = st.Completion
	}
	assert.InDelta(t, 1.0, prev, 1e-9)
}
