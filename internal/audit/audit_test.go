package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subject = subject
	f.data = data
	return nil
}

func sampleRecord() domain.VerificationRecord {
	return domain.VerificationRecord{
		ID:           "v1",
		DocumentID:   "d1",
		CustomerID:   "c1",
		DocumentType: domain.DocumentAadhaar,
		Status:       domain.StatusNeedsReview,
		Score:        0.61,
		FallbackMode: true,
		CreatedAt:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFromRecord(t *testing.T) {
	e := FromRecord(ActionVerify, "req-7", sampleRecord())
	assert.Equal(t, ActorSystem, e.Actor)
	assert.Equal(t, ActionVerify, e.Action)
	assert.Equal(t, domain.StatusNeedsReview, e.Outcome)
	assert.True(t, e.FallbackMode)
	assert.Equal(t, "req-7", e.RequestID)
	assert.Equal(t, sampleRecord().CreatedAt, e.Timestamp)
}

func TestNATSSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "kyc.audit")

	require.NoError(t, sink.Emit(context.Background(), FromRecord(ActionVerify, "", sampleRecord())))
	assert.Equal(t, "kyc.audit", pub.subject)

	var got Entry
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, "d1", got.DocumentID)
	assert.Equal(t, domain.StatusNeedsReview, got.Outcome)
}

func TestNATSSink_PublishError(t *testing.T) {
	boom := errors.New("no servers")
	sink := NewNATSSink(&fakePublisher{err: boom}, "kyc.audit")
	assert.ErrorIs(t, sink.Emit(context.Background(), Entry{}), boom)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	require.NoError(t, sink.Emit(context.Background(), FromRecord(ActionResubmit, "", sampleRecord())))
	assert.Contains(t, buf.String(), `"action":"resubmit"`)
	assert.Contains(t, buf.String(), `"outcome":"NEEDS_REVIEW"`)
}

func TestMulti_TriesEverySink(t *testing.T) {
	boom := errors.New("down")
	mem := &MemorySink{}
	m := Multi{NewNATSSink(&fakePublisher{err: boom}, "s"), mem}

	err := m.Emit(context.Background(), Entry{DocumentID: "d1"})
	assert.ErrorIs(t, err, boom)
	require.Len(t, mem.Entries(), 1)
	assert.Equal(t, "d1", mem.Entries()[0].DocumentID)
}
