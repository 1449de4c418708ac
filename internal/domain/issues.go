package domain

import "fmt"

// IssueCode is a stable machine-readable validation or verification issue.
type IssueCode string

const (
	IssueMissingField       IssueCode = "MISSING_FIELD"
	IssueFormatMismatch     IssueCode = "FORMAT_MISMATCH"
	IssueChecksumFailed     IssueCode = "CHECKSUM_FAILED"
	IssueDateUnparseable    IssueCode = "DATE_UNPARSEABLE"
	IssueDateInFuture       IssueCode = "DATE_IN_FUTURE"
	IssueAgeOutOfRange      IssueCode = "AGE_OUT_OF_RANGE"
	IssueDateExpired        IssueCode = "DATE_EXPIRED"
	IssueTooShort           IssueCode = "VALUE_TOO_SHORT"
	IssueLowQuality         IssueCode = "LOW_QUALITY"
	IssueFallbackExtraction IssueCode = "FALLBACK_EXTRACTION"
	IssueUnreadableDocument IssueCode = "UNREADABLE_DOCUMENT"
)

var issueMessages = map[IssueCode]string{
	IssueMissingField:       "could not be read from the document",
	IssueFormatMismatch:     "does not have the expected format",
	IssueChecksumFailed:     "failed its checksum or structure check",
	IssueDateUnparseable:    "is not a recognizable date",
	IssueDateInFuture:       "is a date in the future",
	IssueAgeOutOfRange:      "gives an age outside the accepted range",
	IssueDateExpired:        "shows the document has expired",
	IssueTooShort:           "is too short to be valid",
	IssueLowQuality:         "was read with low confidence",
	IssueFallbackExtraction: "was recovered from a degraded image and needs a manual check",
	IssueUnreadableDocument: "The document image could not be read. Please upload a clearer photo or scan.",
}

// Message renders a human-readable explanation for an issue, optionally scoped to a field.
func (c IssueCode) Message(field FieldName) string {
	msg, ok := issueMessages[c]
	if !ok {
		msg = string(c)
	}
	if field == "" || c == IssueUnreadableDocument {
		return msg
	}
	return fmt.Sprintf("%s %s", fieldLabel(field), msg)
}

// NewReason builds a Reason with its translated message.
func NewReason(code IssueCode, field FieldName) Reason {
	return Reason{Code: code, Field: field, Message: code.Message(field)}
}

var fieldLabels = map[FieldName]string{
	FieldFullName:    "Name",
	FieldIDNumber:    "ID number",
	FieldDateOfBirth: "Date of birth",
	FieldAddress:     "Address",
	FieldGender:      "Gender",
	FieldFatherName:  "Father's name",
	FieldNationality: "Nationality",
	FieldExpiryDate:  "Expiry date",
}

func fieldLabel(f FieldName) string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}
