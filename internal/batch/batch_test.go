package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/files"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
	"github.com/MeKo-Tech/kycscan/internal/storage"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	local, err := files.NewLocal(t.TempDir())
	require.NoError(t, err)
	pl, err := pipeline.NewBuilder().
		WithEngine(testutil.NewScriptedEngine(testutil.AadhaarTokens())).
		WithStore(storage.NewMemory()).
		WithFiles(local).
		WithWorkers(2).
		Build()
	require.NoError(t, err)
	return pl
}

func TestProcessBatch(t *testing.T) {
	dir := t.TempDir()
	png := testutil.DocumentPNG(t, testutil.AadhaarTokens())
	testutil.WriteFile(t, dir, "cust-1/aadhaar_front.png", png)
	testutil.WriteFile(t, dir, "cust-2/aadhaar.png", png)
	testutil.WriteFile(t, dir, "cust-2/selfie.png", png)

	var progress bytes.Buffer
	res, err := ProcessBatch(context.Background(), newPipeline(t), []string{dir}, Config{
		Recursive:    true,
		ShowProgress: true,
		Progress:     &progress,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, 2, res.WorkerCount)

	byFile := map[string]Item{}
	for _, it := range res.Items {
		byFile[it.File[len(dir)+1:]] = it
	}

	first := byFile["cust-1/aadhaar_front.png"]
	require.NoError(t, first.Err)
	assert.Equal(t, "cust-1", first.CustomerID)
	assert.Equal(t, domain.StatusVerified, first.Result.Record.Status)

	selfie := byFile["cust-2/selfie.png"]
	assert.True(t, selfie.Failed())
	assert.ErrorIs(t, selfie.Err, domain.ErrUnknownDocumentType)

	stats := res.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.ByStatus[domain.StatusVerified])
	assert.Contains(t, progress.String(), "2/2")

	var out bytes.Buffer
	res.PrintStats(&out)
	assert.Contains(t, out.String(), "Total documents: 3")
	assert.Contains(t, out.String(), "VERIFIED: 2")
}

func TestProcessBatchFixedCustomerAndType(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "scan-001.png", testutil.DocumentPNG(t, testutil.AadhaarTokens()))

	res, err := ProcessBatch(context.Background(), newPipeline(t), []string{dir}, Config{
		CustomerID:   "cust-9",
		DocumentType: domain.DocumentAadhaar,
		Quiet:        true,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NoError(t, res.Items[0].Err)
	assert.Equal(t, "cust-9", res.Items[0].Result.Record.CustomerID)
}

func TestProcessBatchNoFiles(t *testing.T) {
	_, err := ProcessBatch(context.Background(), newPipeline(t), []string{t.TempDir()}, Config{Quiet: true})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestProcessBatchCancelled(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "aadhaar.png", testutil.DocumentPNG(t, testutil.AadhaarTokens()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessBatch(ctx, newPipeline(t), []string{dir}, Config{Quiet: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatResults(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "c1/aadhaar.png", testutil.DocumentPNG(t, testutil.AadhaarTokens()))
	res, err := ProcessBatch(context.Background(), newPipeline(t), []string{dir}, Config{Recursive: true, Quiet: true})
	require.NoError(t, err)
	res.Items = append(res.Items, Item{File: "broken.png", Err: errors.New("boom")})

	t.Run("json", func(t *testing.T) {
		out, err := res.FormatResults("json")
		require.NoError(t, err)
		var decoded struct {
			Documents []map[string]any `json:"documents"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		require.Len(t, decoded.Documents, 2)
		assert.Equal(t, "boom", decoded.Documents[1]["error"])
		assert.NotNil(t, decoded.Documents[0]["result"])
	})

	t.Run("csv", func(t *testing.T) {
		out, err := res.FormatResults("csv")
		require.NoError(t, err)
		rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "file", rows[0][0])
		assert.Greater(t, len(rows), 3)
		last := rows[len(rows)-1]
		assert.Equal(t, "broken.png", last[0])
		assert.Equal(t, "boom", last[10])
	})

	t.Run("text", func(t *testing.T) {
		out, err := res.FormatResults("text")
		require.NoError(t, err)
		assert.Contains(t, out, "status: VERIFIED")
		assert.Contains(t, out, "error: boom")
	})
}
