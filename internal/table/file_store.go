package table

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists a table to a single file using a Codec. Saves are full
// rewrites through a temp file and rename, so readers never observe a
// partially written table.
type FileStore struct {
	path  string
	codec Codec
}

// NewFileStore creates a FileStore for path.
func NewFileStore(path string, codec Codec) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	return &FileStore{path: path, codec: codec}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the file. A missing file yields an error wrapping
// fs.ErrNotExist.
func (s *FileStore) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	t, err := s.codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return t, nil
}

// Save encodes the table and atomically replaces the file. Save does not
// check ctx so a final checkpoint still lands after an interrupt.
func (s *FileStore) Save(_ context.Context, t *Table) error {
	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, t); err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	return WriteFileAtomic(s.path, buf.Bytes())
}

// WriteFileAtomic writes data to a temp file beside path and renames it over
// path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
