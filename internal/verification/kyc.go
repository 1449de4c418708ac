package verification

import (
	"time"

	"github.com/MeKo-Tech/kycscan/internal/doctype"
	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// DefaultRequiredCategories are the KYC categories a customer must satisfy
// unless configured otherwise.
var DefaultRequiredCategories = []domain.DocumentType{domain.DocumentIDProof, domain.DocumentAddressProof}

// severity orders states from most to least unresolved.
var severity = map[domain.KycState]int{
	domain.KycRejected:          5,
	domain.KycInProgress:        4,
	domain.KycNotStarted:        4,
	domain.KycPartiallyVerified: 3,
	domain.KycNeedsReview:       2,
	domain.KycVerified:          1,
}

// ProfileLookup resolves a document type to its profile.
type ProfileLookup interface {
	Get(dt domain.DocumentType) (*doctype.Profile, error)
}

// ComputeKyc recomputes a customer's KYC status from scratch. records must be
// in append order; within a category the most recently appended record wins.
func ComputeKyc(customerID string, required []domain.DocumentType, profiles ProfileLookup,
	docs []domain.Document, records []domain.VerificationRecord, now time.Time,
) domain.KycStatus {
	st := domain.KycStatus{
		CustomerID: customerID,
		Documents:  make(map[domain.DocumentType]domain.KycState, len(required)),
		State:      domain.KycNotStarted,
		UpdatedAt:  now,
	}

	docType := make(map[string]domain.DocumentType, len(docs))
	for _, d := range docs {
		docType[d.ID] = d.Type
	}

	satisfies := func(dt, category domain.DocumentType) bool {
		if dt == category {
			return true
		}
		p, err := profiles.Get(dt)
		return err == nil && p.SatisfiesCategory(category)
	}

	for _, c := range required {
		state := domain.KycNotStarted
		for _, d := range docs {
			if satisfies(d.Type, c) {
				state = domain.KycInProgress
				break
			}
		}
		for _, r := range records {
			dt, ok := docType[r.DocumentID]
			if !ok {
				dt = r.DocumentType
			}
			if satisfies(dt, c) {
				state = domain.StateOf(r.Status)
			}
		}
		st.Documents[c] = state
	}

	if len(docs) == 0 {
		return st
	}

	done := 0
	worst := domain.KycVerified
	for _, c := range required {
		s := st.Documents[c]
		if s == domain.KycVerified || s == domain.KycNeedsReview {
			done++
		}
		if severity[s] > severity[worst] {
			worst = s
		}
	}
	if worst == domain.KycNotStarted {
		worst = domain.KycInProgress
	}
	st.State = worst
	if len(required) == 0 {
		st.Completion = 1
	} else {
		st.Completion = float64(done) / float64(len(required))
	}
	return st
}
