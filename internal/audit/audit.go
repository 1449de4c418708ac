// Package audit emits one entry per verification attempt. Entries are
// written after the verification transaction commits; a failing sink never
// undoes a verification.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Entry is one audit event.
type Entry struct {
	Actor        string                    `json:"actor"`
	Action       string                    `json:"action"`
	DocumentID   string                    `json:"document_id"`
	CustomerID   string                    `json:"customer_id"`
	DocumentType domain.DocumentType       `json:"document_type"`
	Outcome      domain.VerificationStatus `json:"outcome"`
	Score        float64                   `json:"score"`
	FallbackMode bool                      `json:"fallback_mode"`
	RequestID    string                    `json:"request_id,omitempty"`
	Timestamp    time.Time                 `json:"timestamp"`
}

const (
	ActorSystem    = "system"
	ActionVerify   = "verify"
	ActionResubmit = "resubmit"
)

// FromRecord builds the entry for a committed verification record.
func FromRecord(action, requestID string, rec domain.VerificationRecord) Entry {
	return Entry{
		Actor:        ActorSystem,
		Action:       action,
		DocumentID:   rec.DocumentID,
		CustomerID:   rec.CustomerID,
		DocumentType: rec.DocumentType,
		Outcome:      rec.Status,
		Score:        rec.Score,
		FallbackMode: rec.FallbackMode,
		RequestID:    requestID,
		Timestamp:    rec.CreatedAt,
	}
}

// Sink receives audit entries.
type Sink interface {
	Emit(ctx context.Context, e Entry) error
}

// LogSink writes entries to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements Sink.
func (s LogSink) Emit(ctx context.Context, e Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit",
		"actor", e.Actor,
		"action", e.Action,
		"document_id", e.DocumentID,
		"customer_id", e.CustomerID,
		"document_type", e.DocumentType,
		"outcome", e.Outcome,
		"score", e.Score,
		"fallback_mode", e.FallbackMode,
		"request_id", e.RequestID,
		"timestamp", e.Timestamp)
	return nil
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// Emit implements Sink.
func (s *MemorySink) Emit(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of everything emitted so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Multi fans an entry out to several sinks and returns the first error.
type Multi []Sink

// Emit implements Sink. Every sink is tried even if an earlier one fails.
func (m Multi) Emit(ctx context.Context, e Entry) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
