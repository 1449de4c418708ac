// Package domain holds the record shapes shared by every stage of the
// extraction → validation → verification pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType identifies what kind of identity document was uploaded.
// Generic categories (ID_PROOF, ADDRESS_PROOF, PHOTO) double as the KYC
// requirement categories a specific document type can satisfy.
type DocumentType string

const (
	DocumentIDProof      DocumentType = "ID_PROOF"
	DocumentAddressProof DocumentType = "ADDRESS_PROOF"
	DocumentPhoto        DocumentType = "PHOTO"
	DocumentAadhaar      DocumentType = "AADHAAR"
	DocumentPAN          DocumentType = "PAN"
	DocumentPassport     DocumentType = "PASSPORT"
	DocumentUtilityBill  DocumentType = "UTILITY_BILL"
)

// ParseDocumentType normalizes user input ("aadhaar", "Utility-Bill") into a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	t = strings.ReplaceAll(t, "-", "_")
	t = strings.ReplaceAll(t, " ", "_")
	if t == "" {
		return "", fmt.Errorf("empty document type")
	}
	return DocumentType(t), nil
}

// DocumentState tracks where a document is in its processing lifecycle.
type DocumentState string

const (
	DocumentUploaded   DocumentState = "UPLOADED"
	DocumentProcessing DocumentState = "PROCESSING"
	DocumentCompleted  DocumentState = "COMPLETED"
	DocumentFailed     DocumentState = "FAILED"
)

// Document is an uploaded identity document. Creation happens outside the
// pipeline; the pipeline only moves State forward and never deletes it.
type Document struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customer_id"`
	Type           DocumentType  `json:"type"`
	StoragePointer string        `json:"storage_pointer"`
	UploadedAt     time.Time     `json:"uploaded_at"`
	State          DocumentState `json:"state"`
}

// RunContext carries everything a single pipeline invocation needs to know
// about who and what it is processing. It replaces any process-wide state.
type RunContext struct {
	CustomerID string
	DocumentID string
	// StrategyTag optionally overrides the document type's extractor strategy (e.g. "label@v1").
	StrategyTag string
	// RequestID correlates logs and audit entries for one request.
	RequestID string
}
