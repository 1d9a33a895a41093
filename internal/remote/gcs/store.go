// Package gcs implements remote.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/contact-harvester/internal/remote"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to names; IDs are used as object names verbatim.
	Prefix string
}

// Store keeps datasets as objects in a configured bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Download reads the object named by ref.ID, then the prefixed ref.Name.
func (s *Store) Download(ctx context.Context, ref remote.Ref) ([]byte, error) {
	candidates := s.candidates(ref)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("download: file id or name is required")
	}
	for _, name := range candidates {
		data, err := s.read(ctx, name)
		if errors.Is(err, storage.ErrObjectNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, candidates[len(candidates)-1], remote.ErrNotFound)
}

// Upload writes the object and returns its name. ParentID becomes a folder
// segment between the prefix and the name.
func (s *Store) Upload(ctx context.Context, up remote.Upload) (string, error) {
	name := up.FileID
	if name == "" {
		if strings.TrimSpace(up.Name) == "" {
			return "", fmt.Errorf("upload: file id or name is required")
		}
		name = s.objectName(up.ParentID, up.Name)
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if up.ContentType != "" {
		writer.ContentType = up.ContentType
	}
	if _, err := writer.Write(up.Data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return name, nil
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("open object %s: %w", name, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) candidates(ref remote.Ref) []string {
	var out []string
	if ref.ID != "" {
		out = append(out, ref.ID)
	}
	if ref.Name != "" {
		if name := s.objectName("", ref.Name); name != ref.ID {
			out = append(out, name)
		}
	}
	return out
}

func (s *Store) objectName(parent, name string) string {
	return path.Join(s.prefix, strings.Trim(parent, "/"), name)
}
