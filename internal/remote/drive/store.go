// Package drive implements remote.Store on the Google Drive v3 API.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JakeFAU/contact-harvester/internal/remote"
)

// Store reads and writes whole files in Drive.
type Store struct {
	svc *drivev3.Service
}

// New builds a Store. Callers supply credentials through opts.
func New(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	opts = append([]option.ClientOption{option.WithScopes(drivev3.DriveScope)}, opts...)
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Store{svc: svc}, nil
}

// CredentialsFromEnv reads a service account JSON blob from the named
// environment variable.
func CredentialsFromEnv(name string) (option.ClientOption, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s is empty", name)
	}
	return option.WithCredentialsJSON([]byte(raw)), nil
}

// Download fetches the file by ID, falling back to the first non-trashed
// file with a matching name.
func (s *Store) Download(ctx context.Context, ref remote.Ref) ([]byte, error) {
	if ref.ID == "" && ref.Name == "" {
		return nil, fmt.Errorf("download: file id or name is required")
	}
	if ref.ID != "" {
		data, err := s.downloadByID(ctx, ref.ID)
		if err == nil || !errors.Is(err, remote.ErrNotFound) || ref.Name == "" {
			return data, err
		}
	}
	id, err := s.findByName(ctx, ref.Name)
	if err != nil {
		return nil, err
	}
	return s.downloadByID(ctx, id)
}

// Upload updates FileID in place, or creates Name under ParentID.
func (s *Store) Upload(ctx context.Context, up remote.Upload) (string, error) {
	var media []googleapi.MediaOption
	if up.ContentType != "" {
		media = append(media, googleapi.ContentType(up.ContentType))
	}

	if up.FileID != "" {
		f, err := s.svc.Files.Update(up.FileID, &drivev3.File{}).
			Media(bytes.NewReader(up.Data), media...).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("update drive file %s: %w", up.FileID, mapError(err))
		}
		return f.Id, nil
	}

	if up.Name == "" {
		return "", fmt.Errorf("upload: file id or name is required")
	}
	meta := &drivev3.File{Name: up.Name, MimeType: up.ContentType}
	if up.ParentID != "" {
		meta.Parents = []string{up.ParentID}
	}
	f, err := s.svc.Files.Create(meta).
		Media(bytes.NewReader(up.Data), media...).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create drive file %q: %w", up.Name, mapError(err))
	}
	return f.Id, nil
}

func (s *Store) downloadByID(ctx context.Context, id string) ([]byte, error) {
	resp, err := s.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download drive file %s: %w", id, mapError(err))
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read drive file %s: %w", id, err)
	}
	return data, nil
}

func (s *Store) findByName(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	list, err := s.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("search drive for %q: %w", name, mapError(err))
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("drive file %q: %w", name, remote.ErrNotFound)
	}
	return list.Files[0].Id, nil
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, gerr.Message)
	}
	return err
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
