// Package remote defines the storage a dataset is synced with.
package remote

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that neither the ID nor the name resolved to a file.
var ErrNotFound = errors.New("remote file not found")

// Content types for the supported table formats.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv"
)

// Ref identifies a remote file. ID is tried first, Name is the fallback.
type Ref struct {
	ID   string
	Name string
}

// Upload describes a file to write. A known FileID updates that file in
// place; otherwise a new file called Name is created under ParentID.
type Upload struct {
	FileID      string
	Name        string
	ParentID    string
	ContentType string
	Data        []byte
}

// Store downloads and uploads whole files.
type Store interface {
	Download(ctx context.Context, ref Ref) ([]byte, error)
	// Upload returns the ID of the written file.
	Upload(ctx context.Context, up Upload) (string, error)
}

// ContentTypeFor guesses the content type from a file name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return ContentTypeXLSX
	case ".csv":
		return ContentTypeCSV
	default:
		return "application/octet-stream"
	}
}
