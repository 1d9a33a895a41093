// Package local implements remote.Store on a local directory, standing in
// for a mounted or synced drive folder.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/contact-harvester/internal/remote"
	"github.com/JakeFAU/contact-harvester/internal/table"
)

// Config captures the parameters for the local directory store.
type Config struct {
	// BaseDir is the root directory that holds remote files.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store keeps files under BaseDir. IDs and names are paths relative to it.
type Store struct {
	baseDir string
}

// New creates a store, creating BaseDir when missing.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// Download reads ref.ID, falling back to ref.Name.
func (s *Store) Download(_ context.Context, ref remote.Ref) ([]byte, error) {
	if ref.ID == "" && ref.Name == "" {
		return nil, fmt.Errorf("download: file id or name is required")
	}
	for _, rel := range []string{ref.ID, ref.Name} {
		if rel == "" {
			continue
		}
		full, err := s.resolve(rel)
		if err != nil {
			return nil, err
		}
		// #nosec G304 -- full is confined to baseDir by resolve.
		data, err := os.ReadFile(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", filepath.Join(s.baseDir, ref.Name), remote.ErrNotFound)
}

// Upload writes FileID, or ParentID/Name when no ID is known, and returns
// the path relative to BaseDir.
func (s *Store) Upload(_ context.Context, up remote.Upload) (string, error) {
	rel := up.FileID
	if rel == "" {
		if strings.TrimSpace(up.Name) == "" {
			return "", fmt.Errorf("upload: file id or name is required")
		}
		rel = filepath.Join(up.ParentID, up.Name)
	}
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := table.WriteFileAtomic(full, up.Data); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// resolve joins rel onto baseDir and rejects paths that escape it.
func (s *Store) resolve(rel string) (string, error) {
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(filepath.Join(cleanBaseDir, rel))
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFullPath, nil
}
