package proof

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const DefaultMaxBytes int64 = 5 << 20

var (
	ErrMissing       = errors.New("proof file is missing")
	ErrTooLarge      = errors.New("proof file is too large")
	ErrType          = errors.New("proof file type is not allowed")
	ErrContent       = errors.New("proof file content does not match its type")
	ErrInvalidName   = errors.New("invalid proof file name")
	ErrFileNotExists = errors.New("proof file does not exist")
)

// allowed maps each accepted MIME type to the extensions it may carry.
var allowed = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
}

// File is an uploaded proof of payment.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

func (s *Store) MaxBytes() int64 { return s.maxBytes }

// Validate checks the declared metadata of an upload: presence, size, MIME
// type and extension, and that the extension belongs to the declared type.
func (s *Store) Validate(f *File) error {
	if f == nil || f.Content == nil || f.Size <= 0 {
		return ErrMissing
	}
	if f.Size > s.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, f.Size, s.maxBytes)
	}

	declared := mediaType(f.ContentType)
	exts, ok := allowed[declared]
	if !ok {
		return fmt.Errorf("%w: content type %q", ErrType, f.ContentType)
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	for _, e := range exts {
		if e == ext {
			return nil
		}
	}
	return fmt.Errorf("%w: extension %q for %s", ErrType, ext, declared)
}

// Save writes the upload under a fresh random name and returns that name.
// The content is sniffed and must match the declared type.
func (s *Store) Save(f *File) (string, error) {
	if err := s.Validate(f); err != nil {
		return "", err
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(f.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	declared := mediaType(f.ContentType)
	if !mimetype.Detect(head).Is(declared) {
		return "", fmt.Errorf("%w: expected %s", ErrContent, declared)
	}

	name := uuid.NewString() + allowed[declared][0]
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	body := io.MultiReader(bytes.NewReader(head), f.Content)
	written, err := io.Copy(tmp, io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		cleanup()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if written > s.maxBytes {
		cleanup()
		return "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return name, nil
}

func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open returns a stored proof by its generated name together with its MIME type.
func (s *Store) Open(name string) (*os.File, string, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrFileNotExists
		}
		return nil, "", err
	}
	return f, ContentTypeFor(name), nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	if ContentTypeFor(name) == "" {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}

// ContentTypeFor returns the allowed image MIME type for a file name, or "".
func ContentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for mt, exts := range allowed {
		for _, e := range exts {
			if e == ext {
				return mt
			}
		}
	}
	return ""
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
