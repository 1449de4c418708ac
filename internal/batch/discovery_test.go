package batch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/kycscan/internal/domain"
	"github.com/MeKo-Tech/kycscan/internal/testutil"
)

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.png", []byte("x"))
	testutil.WriteFile(t, dir, "b.PDF", []byte("x"))
	testutil.WriteFile(t, dir, "notes.txt", []byte("x"))
	testutil.WriteFile(t, dir, "sub/c.jpg", []byte("x"))

	t.Run("flat", func(t *testing.T) {
		files, err := discoverFiles([]string{dir}, false, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.PDF")}, files)
	})

	t.Run("recursive", func(t *testing.T) {
		files, err := discoverFiles([]string{dir}, true, nil, nil)
		require.NoError(t, err)
		assert.Len(t, files, 3)
		assert.Contains(t, files, filepath.Join(dir, "sub", "c.jpg"))
	})

	t.Run("exclude wins", func(t *testing.T) {
		files, err := discoverFiles([]string{dir}, true, nil, []string{"*.pdf"})
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("explicit file filtered", func(t *testing.T) {
		files, err := discoverFiles([]string{filepath.Join(dir, "notes.txt")}, false, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := discoverFiles([]string{filepath.Join(dir, "nope")}, false, nil, nil)
		assert.Error(t, err)
	})
}

func TestDiscoverFiles_DecodableFormatsOnly(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "scan.tiff", []byte("x"))
	testutil.WriteFile(t, dir, "photo.webp", []byte("x"))
	testutil.WriteFile(t, dir, "notes.txt", []byte("x"))

	files, err := discoverFiles([]string{dir}, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "photo.webp"), filepath.Join(dir, "scan.tiff")}, files)

	files, err = discoverFiles([]string{dir}, false, []string{"*"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, files, filepath.Join(dir, "notes.txt"), "a catch-all include still skips undecodable formats")
	assert.Len(t, files, 2)
}

func TestInferDocumentType(t *testing.T) {
	known := []domain.DocumentType{
		domain.DocumentAadhaar, domain.DocumentPAN, domain.DocumentPassport,
		domain.DocumentUtilityBill, domain.DocumentIDProof,
	}
	tests := []struct {
		path string
		want domain.DocumentType
		ok   bool
	}{
		{"scans/aadhaar_front.png", domain.DocumentAadhaar, true},
		{"PAN.jpg", domain.DocumentPAN, true},
		{"utility-bill-2026-03.pdf", domain.DocumentUtilityBill, true},
		{"id proof.png", domain.DocumentIDProof, true},
		{"panorama.png", "", false},
		{"selfie.png", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := InferDocumentType(tt.path, known)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomerFor(t *testing.T) {
	assert.Equal(t, "fixed", customerFor("/in/cust-1/a.png", "fixed"))
	assert.Equal(t, "cust-1", customerFor("/in/cust-1/a.png", ""))
}
