package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/pipeline"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

func TestVerifyCommandJSON(t *testing.T) {
	setupEnv(t, testutil.NewScriptedEngine(testutil.AadhaarTokens()))
	path := testutil.WriteFile(t, t.TempDir(), "aadhaar_front.png", testutil.DocumentPNG(t, testutil.AadhaarTokens()))

	out, _, err := executeCommand(t, "verify", path, "--customer", "cust-1", "--type", "", "--format", "json")
	require.NoError(t, err)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.StatusVerified, res.Record.Status)
	assert.Equal(t, "cust-1", res.Record.CustomerID)
	assert.Equal(t, domain.DocumentAadhaar, res.Document.Type)
}

func TestVerifyCommandText(t *testing.T) {
	setupEnv(t, testutil.NewScriptedEngine(testutil.AadhaarTokens()))
	path := testutil.WriteFile(t, t.TempDir(), "scan.png", testutil.DocumentPNG(t, testutil.AadhaarTokens()))

	out, _, err := executeCommand(t, "verify", path, "--customer", "cust-1", "--type", "aadhaar", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "status: VERIFIED")
}

func TestVerifyCommandUnknownType(t *testing.T) {
	setupEnv(t, testutil.NewScriptedEngine(nil))
	path := testutil.WriteFile(t, t.TempDir(), "selfie.png", testutil.BlankPNG(t, 64, 64))

	_, _, err := executeCommand(t, "verify", path, "--type", "", "--format", "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownDocumentType)
}

func TestVerifyCommandMissingFile(t *testing.T) {
	setupEnv(t, testutil.NewScriptedEngine(nil))
	_, _, err := executeCommand(t, "verify", filepath.Join(t.TempDir(), "aadhaar.png"), "--type", "", "--format", "json")
	assert.Error(t, err)
}

func TestResolveDocumentType(t *testing.T) {
	known := []domain.DocumentType{domain.DocumentPAN, domain.DocumentPassport}

	dt, err := resolveDocumentType("utility-bill", "x.png", known)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentUtilityBill, dt)

	dt, err = resolveDocumentType("", "dir/passport_p1.jpg", known)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentPassport, dt)

	_, err = resolveDocumentType("", "dir/photo.jpg", known)
	assert.ErrorIs(t, err, domain.ErrUnknownDocumentType)
}
