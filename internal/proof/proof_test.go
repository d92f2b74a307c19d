package proof

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pngOfSize(n int) []byte {
	b := make([]byte, n)
	copy(b, pngHeader)
	return b
}

func upload(name, contentType string, body []byte) *File {
	return &File{Name: name, ContentType: contentType, Size: int64(len(body)), Content: bytes.NewReader(body)}
}

func newStore(t *testing.T, max int64) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), max)
	require.NoError(t, err)
	return s
}

func TestValidateSizeBoundary(t *testing.T) {
	s := newStore(t, 1024)

	assert.NoError(t, s.Validate(upload("slip.png", "image/png", pngOfSize(1024))))
	assert.ErrorIs(t, s.Validate(upload("slip.png", "image/png", pngOfSize(1025))), ErrTooLarge)
}

func TestValidateTypeAndExtension(t *testing.T) {
	s := newStore(t, 0)
	body := pngOfSize(64)

	tests := []struct {
		name        string
		fileName    string
		contentType string
		wantErr     error
	}{
		{"png", "slip.PNG", "image/png", nil},
		{"jpeg with params", "slip.jpeg", "image/jpeg; charset=binary", nil},
		{"webp", "slip.webp", "image/webp", nil},
		{"pdf not allowed", "slip.pdf", "application/pdf", ErrType},
		{"extension mismatch", "slip.jpg", "image/png", ErrType},
		{"no extension", "slip", "image/png", ErrType},
		{"gif not allowed", "slip.gif", "image/gif", ErrType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(upload(tt.fileName, tt.contentType, body))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateMissing(t *testing.T) {
	s := newStore(t, 0)
	assert.ErrorIs(t, s.Validate(nil), ErrMissing)
	assert.ErrorIs(t, s.Validate(upload("slip.png", "image/png", nil)), ErrMissing)
}

func TestSaveAndOpen(t *testing.T) {
	s := newStore(t, 0)
	body := pngOfSize(4096)

	name, err := s.Save(upload("my slip.png", "image/png", body))
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(name))
	assert.NotContains(t, name, "my slip")

	f, contentType, err := s.Open(name)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "image/png", contentType)

	stored, err := os.ReadFile(filepath.Join(s.dir, name))
	require.NoError(t, err)
	assert.Equal(t, body, stored)
}

func TestSaveRejectsDisguisedContent(t *testing.T) {
	s := newStore(t, 0)

	_, err := s.Save(upload("slip.png", "image/png", []byte("%PDF-1.7 not an image at all")))
	assert.ErrorIs(t, err, ErrContent)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveRejectsUnderstatedSize(t *testing.T) {
	s := newStore(t, 512)
	f := upload("slip.png", "image/png", pngOfSize(600))
	f.Size = 100

	_, err := s.Save(f)
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := newStore(t, 0)

	for _, name := range []string{"", "../etc/passwd.png", "a/b.png", `a\b.png`, ".hidden.png", "notes.txt", ".."} {
		_, _, err := s.Open(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	_, _, err := s.Open("7f1c2f1e-0000-4000-8000-000000000000.png")
	assert.ErrorIs(t, err, ErrFileNotExists)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	s := newStore(t, 0)
	assert.NoError(t, s.Remove("7f1c2f1e-0000-4000-8000-000000000000.jpg"))
}
