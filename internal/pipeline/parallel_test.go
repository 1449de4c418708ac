package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

type recordingProgress struct {
	mu     sync.Mutex
	total  int
	done   []int
	closed bool
}

func (r *recordingProgress) OnStart(total int) { r.total = total }

func (r *recordingProgress) OnDocument(done, _ int, _ BatchItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, done)
}

func (r *recordingProgress) OnComplete() { r.closed = true }

func TestRunMany_KeepsOrderAndIsolatesFailures(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedEngine(testutil.AadhaarTokens()))
	good := f.upload(t, "c1", domain.DocumentAadhaar, testutil.DocumentPNG(t, testutil.AadhaarTokens()))
	bad := f.upload(t, "c2", domain.DocumentAadhaar, []byte("garbage"))

	runs := []domain.RunContext{
		{DocumentID: good.ID},
		{DocumentID: "does-not-exist"},
		{DocumentID: bad.ID},
	}
	progress := &recordingProgress{}
	items, err := f.p.RunMany(context.Background(), runs, progress)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for i, it := range items {
		assert.Equal(t, runs[i].DocumentID, it.Run.DocumentID)
	}
	require.NoError(t, items[0].Err)
	assert.Equal(t, domain.StatusVerified, items[0].Result.Record.Status)
	assert.ErrorIs(t, items[1].Err, domain.ErrNotFound)
	require.NoError(t, items[2].Err)
	assert.Equal(t, domain.StatusRejected, items[2].Result.Record.Status)

	assert.Equal(t, 3, progress.total)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress.done)
	assert.True(t, progress.closed)
}

func TestRunMany_Empty(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedEngine(nil))
	items, err := f.p.RunMany(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunMany_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedEngine(testutil.AadhaarTokens()))
	doc := f.upload(t, "c1", domain.DocumentAadhaar, testutil.DocumentPNG(t, testutil.AadhaarTokens()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items, err := f.p.RunMany(ctx, []domain.RunContext{{DocumentID: doc.ID}, {DocumentID: doc.ID}}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.ErrorIs(t, it.Err, context.Canceled)
		assert.Nil(t, it.Result)
	}
	assert.Empty(t, f.sink.Entries())
}

func TestConsoleProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewConsoleProgress(&buf, "verify ").WithWidth(10)

	p.OnStart(2)
	p.OnDocument(1, 2, BatchItem{Result: &Result{Record: domain.VerificationRecord{Status: domain.StatusVerified}}})
	p.OnDocument(2, 2, BatchItem{Err: assert.AnError})
	p.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "verify 0/2")
	assert.Contains(t, out, "[#####.....] 1/2 (50.0%)")
	assert.Contains(t, out, "[##########] 2/2 (100.0%)")
	assert.Contains(t, out, "VERIFIED=1")
	assert.Contains(t, out, "errors=1")
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := NewLogProgress(logger, 2)

	p.OnStart(3)
	for i := 1; i <= 3; i++ {
		p.OnDocument(i, 3, BatchItem{Run: domain.RunContext{DocumentID: "d"}})
	}
	p.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "Starting batch")
	assert.Equal(t, 2, strings.Count(out, "Batch progress"), "logs at the interval and at the end")
	assert.Contains(t, out, "Batch completed")
}
