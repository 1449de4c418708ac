package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

// resetBatchFlags restores flag defaults; cobra keeps flag state between
// executions of the shared root command.
func resetBatchFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		batchCmd.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	reset()
	t.Cleanup(reset)
}

func TestBatchCommand(t *testing.T) {
	resetBatchFlags(t)
	setupEnv(t, testutil.NewScriptedEngine(testutil.AadhaarTokens()))
	dir := t.TempDir()
	png := testutil.DocumentPNG(t, testutil.AadhaarTokens())
	testutil.WriteFile(t, dir, "cust-1/aadhaar.png", png)
	testutil.WriteFile(t, dir, "cust-2/aadhaar_front.png", png)

	outFile := filepath.Join(t.TempDir(), "results.json")
	_, _, err := executeCommand(t, "batch", dir, "--recursive", "--format", "json", "--output", outFile, "--quiet")
	require.NoError(t, err)

	raw, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var decoded struct {
		Documents []struct {
			CustomerID string `json:"customer_id"`
			Result     struct {
				Record struct {
					Status string `json:"status"`
				} `json:"record"`
			} `json:"result"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Documents, 2)
	for _, d := range decoded.Documents {
		assert.Equal(t, "VERIFIED", d.Result.Record.Status)
	}
	assert.ElementsMatch(t, []string{"cust-1", "cust-2"},
		[]string{decoded.Documents[0].CustomerID, decoded.Documents[1].CustomerID})
}

func TestBatchCommandFailedFiles(t *testing.T) {
	resetBatchFlags(t)
	setupEnv(t, testutil.NewScriptedEngine(testutil.AadhaarTokens()))
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "aadhaar.png", testutil.DocumentPNG(t, testutil.AadhaarTokens()))
	testutil.WriteFile(t, dir, "holiday.png", testutil.BlankPNG(t, 32, 32))

	_, stderr, err := executeCommand(t, "batch", dir, "--customer", "cust-1", "--format", "text", "--quiet", "--stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents")
	assert.Contains(t, stderr, "Total documents: 2")

	resetBatchFlags(t)
	out, _, err := executeCommand(t, "batch", dir, "--customer", "cust-1", "--format", "text", "--quiet", "--continue-on-error")
	require.NoError(t, err)
	assert.Contains(t, out, "status: VERIFIED")
	assert.Contains(t, out, "unknown document type")
}

func TestBatchCommandNoFiles(t *testing.T) {
	resetBatchFlags(t)
	setupEnv(t, testutil.NewScriptedEngine(nil))
	_, _, err := executeCommand(t, "batch", t.TempDir(), "--quiet")
	assert.Error(t, err)
}
