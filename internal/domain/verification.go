package domain

import "time"

// VerificationStatus is the outcome of verifying one document.
type VerificationStatus string

const (
	StatusVerified          VerificationStatus = "VERIFIED"
	StatusPartiallyVerified VerificationStatus = "PARTIALLY_VERIFIED"
	StatusNeedsReview       VerificationStatus = "NEEDS_REVIEW"
	StatusRejected          VerificationStatus = "REJECTED"
)

// Reason explains a status in both machine and human form.
type Reason struct {
	Code    IssueCode `json:"code"`
	Field   FieldName `json:"field,omitempty"`
	Message string    `json:"message"`
}

// VerificationRecord is an append-only audit row. A newer record for the same
// document supersedes, but never replaces, older ones.
type VerificationRecord struct {
	ID           string             `json:"id"`
	DocumentID   string             `json:"document_id"`
	CustomerID   string             `json:"customer_id"`
	DocumentType DocumentType       `json:"document_type"`
	Status       VerificationStatus `json:"status"`
	Score        float64            `json:"score"`
	Reasons      []Reason           `json:"reasons"`
	FallbackMode bool               `json:"fallback_mode"`
	CreatedAt    time.Time          `json:"created_at"`
}

// KycState is the customer-level state machine.
type KycState string

const (
	KycNotStarted        KycState = "NOT_STARTED"
	KycInProgress        KycState = "IN_PROGRESS"
	KycPartiallyVerified KycState = "PARTIALLY_VERIFIED"
	KycVerified          KycState = "VERIFIED"
	KycNeedsReview       KycState = "NEEDS_REVIEW"
	KycRejected          KycState = "REJECTED"
)

// StateOf maps a document verification status onto the KYC state vocabulary.
func StateOf(s VerificationStatus) KycState {
	switch s {
	case StatusVerified:
		return KycVerified
	case StatusPartiallyVerified:
		return KycPartiallyVerified
	case StatusNeedsReview:
		return KycNeedsReview
	case StatusRejected:
		return KycRejected
	default:
		return KycInProgress
	}
}

// KycStatus is the single logical row per customer owned by the aggregator.
type KycStatus struct {
	CustomerID string                    `json:"customer_id"`
	Documents  map[DocumentType]KycState `json:"documents"`
	Completion float64                   `json:"completion"`
	State      KycState                  `json:"state"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}
