// Package syncer moves the dataset between a remote store and the local
// file the harvester works on, stamping each row with the sync time.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/clock/system"
	"github.com/JakeFAU/contact-harvester/internal/remote"
	"github.com/JakeFAU/contact-harvester/internal/table"
)

// Step names reported to the Recorder.
const (
	StepDownload = "download"
	StepAnnotate = "annotate"
	StepUpload   = "upload"
)

// Clock supplies the annotation timestamp.
type Clock interface {
	Now() time.Time
}

// Recorder observes each sync step.
type Recorder interface {
	ObserveSync(step string, err error)
}

// Config names the remote file and the local copy.
type Config struct {
	LocalPath      string
	FileID         string
	FileName       string
	ParentID       string
	AnnotateColumn string
}

// Syncer runs the download, annotate and upload steps.
type Syncer struct {
	cfg      Config
	remote   remote.Store
	local    table.Store
	clock    Clock
	recorder Recorder
	logger   *zap.Logger
}

// Option customizes a Syncer.
type Option func(*Syncer)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *Syncer) { s.clock = c }
}

// WithRecorder reports step outcomes.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) { s.recorder = r }
}

// New builds a Syncer. codec decodes and encodes the local file.
func New(cfg Config, store remote.Store, codec table.Codec, logger *zap.Logger, opts ...Option) (*Syncer, error) {
	if store == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if cfg.AnnotateColumn == "" {
		return nil, fmt.Errorf("annotate column is required")
	}
	if cfg.FileID == "" && cfg.FileName == "" {
		cfg.FileName = filepath.Base(cfg.LocalPath)
	}
	local, err := table.NewFileStore(cfg.LocalPath, codec)
	if err != nil {
		return nil, fmt.Errorf("local file: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Syncer{
		cfg:    cfg,
		remote: store,
		local:  local,
		clock:  system.New(),
		logger: logger.Named("syncer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Download copies the remote file over the local path.
func (s *Syncer) Download(ctx context.Context) (err error) {
	defer s.observe(StepDownload, &err)

	data, err := s.remote.Download(ctx, remote.Ref{ID: s.cfg.FileID, Name: s.cfg.FileName})
	if err != nil {
		return fmt.Errorf("download dataset: %w", err)
	}
	if err := table.WriteFileAtomic(s.cfg.LocalPath, data); err != nil {
		return fmt.Errorf("write local dataset: %w", err)
	}
	s.logger.Info("File downloaded",
		zap.String("path", s.cfg.LocalPath),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Annotate sets the annotate column on every row to the current UTC time,
// adding the column when absent.
func (s *Syncer) Annotate(ctx context.Context) (err error) {
	defer s.observe(StepAnnotate, &err)

	t, err := s.local.Load(ctx)
	if err != nil {
		return fmt.Errorf("load local dataset: %w", err)
	}
	col := t.EnsureColumn(s.cfg.AnnotateColumn)
	stamp := s.clock.Now().UTC().Format(time.RFC3339)
	for row := 0; row < t.Len(); row++ {
		if err := t.SetCell(row, col, stamp); err != nil {
			return fmt.Errorf("annotate row %d: %w", row, err)
		}
	}
	if err := s.local.Save(ctx, t); err != nil {
		return fmt.Errorf("save local dataset: %w", err)
	}
	s.logger.Info("Dataset annotated",
		zap.String("column", s.cfg.AnnotateColumn),
		zap.String("timestamp", stamp),
		zap.Int("rows", t.Len()),
	)
	return nil
}

// Upload writes the local file to the remote store and returns its ID.
func (s *Syncer) Upload(ctx context.Context) (id string, err error) {
	defer s.observe(StepUpload, &err)

	// #nosec G304 -- LocalPath comes from operator configuration.
	data, err := os.ReadFile(s.cfg.LocalPath)
	if err != nil {
		return "", fmt.Errorf("read local dataset: %w", err)
	}
	name := s.cfg.FileName
	if name == "" {
		name = filepath.Base(s.cfg.LocalPath)
	}
	id, err = s.remote.Upload(ctx, remote.Upload{
		FileID:      s.cfg.FileID,
		Name:        name,
		ParentID:    s.cfg.ParentID,
		ContentType: remote.ContentTypeFor(s.cfg.LocalPath),
		Data:        data,
	})
	if err != nil {
		return "", fmt.Errorf("upload dataset: %w", err)
	}
	s.logger.Info("File uploaded", zap.String("file_id", id), zap.String("name", name))
	return id, nil
}

// Run downloads, annotates and uploads, stopping at the first failure.
func (s *Syncer) Run(ctx context.Context) (string, error) {
	if err := s.Download(ctx); err != nil {
		return "", err
	}
	if err := s.Annotate(ctx); err != nil {
		return "", err
	}
	return s.Upload(ctx)
}

func (s *Syncer) observe(step string, err *error) {
	if s.recorder != nil {
		s.recorder.ObserveSync(step, *err)
	}
	if *err != nil {
		s.logger.Error("Sync step failed", zap.String("step", step), zap.Error(*err))
	}
}
