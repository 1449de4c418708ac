package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotResubmittable is returned when a resubmission is requested for a
// document whose latest verification is not REJECTED.
var ErrNotResubmittable = errors.New("document is not in a resubmittable state")

// ErrUnknownDocumentType is returned for a document type with no configured profile.
var ErrUnknownDocumentType = errors.New("unknown document type")

// ErrUnknownStrategy is returned for a strategy tag nothing is registered under.
var ErrUnknownStrategy = errors.New("unknown extraction strategy")

// ImageDecodeError means the source bytes are not a usable image. It is fatal
// for the document: there are no variants to try.
type ImageDecodeError struct {
	Format string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// RecognitionError is an OCR engine failure for one variant. Callers decide
// whether to try the next variant.
type RecognitionError struct {
	Recipe  string
	Timeout bool
	Err     error
}

func (e *RecognitionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("recognition of variant %q timed out: %v", e.Recipe, e.Err)
	}
	return fmt.Sprintf("recognition of variant %q failed: %v", e.Recipe, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// ValidationRuleError is a malformed rule definition in document-type
// configuration. It is a configuration bug and surfaces at startup.
type ValidationRuleError struct {
	DocumentType DocumentType
	Field        FieldName
	Rule         string
	Err          error
}

func (e *ValidationRuleError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("document type %s: field %s: rule %s: %v", e.DocumentType, e.Field, e.Rule, e.Err)
	}
	return fmt.Sprintf("document type %s: rule %s: %v", e.DocumentType, e.Rule, e.Err)
}

func (e *ValidationRuleError) Unwrap() error { return e.Err }

// AggregationInconsistency means a FieldResult names a field outside the
// document type's vocabulary. It indicates a programming error.
type AggregationInconsistency struct {
	DocumentType DocumentType
	Field        FieldName
}

func (e *AggregationInconsistency) Error() string {
	return fmt.Sprintf("field %q is not in the vocabulary of document type %s", e.Field, e.DocumentType)
}
