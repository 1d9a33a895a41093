// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/contact-harvester/internal/config"
	collyfetcher "github.com/JakeFAU/contact-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/id/uuid"
	"github.com/JakeFAU/contact-harvester/internal/links"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
	"github.com/JakeFAU/contact-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/contact-harvester/internal/publisher/memory"
	"github.com/JakeFAU/contact-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/contact-harvester/internal/remote"
	"github.com/JakeFAU/contact-harvester/internal/remote/drive"
	"github.com/JakeFAU/contact-harvester/internal/remote/gcs"
	"github.com/JakeFAU/contact-harvester/internal/remote/local"
	"github.com/JakeFAU/contact-harvester/internal/syncer"
	"github.com/JakeFAU/contact-harvester/internal/table"
	tablecsv "github.com/JakeFAU/contact-harvester/internal/table/csv"
	"github.com/JakeFAU/contact-harvester/internal/table/xlsx"
)

// Publisher is a harvest.Publisher that holds a connection.
type Publisher interface {
	harvest.Publisher
	Close() error
}

// App holds the shared, long-lived services for one command invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	publisher Publisher
	recorder  *metrics.Recorder
	closers   []func() error
}

// New builds an App from cfg. It fails fast when a configured backend
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		recorder: metrics.NewRecorder(),
	}

	switch cfg.Publish.Backend {
	case config.PublishPubSub:
		logger.Info("Connecting to GCP Pub/Sub",
			zap.String("project", cfg.Publish.ProjectID),
			zap.String("topic", cfg.Publish.Topic),
		)
		p, err := pubsub.New(ctx, pubsub.Config{ProjectID: cfg.Publish.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
	case config.PublishMemory:
		a.publisher = memory.New()
	case "":
		logger.Debug("Run summary publishing disabled")
	default:
		return nil, fmt.Errorf("unknown publish backend: %s", cfg.Publish.Backend)
	}

	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// Publisher returns the run summary publisher, or nil when disabled.
func (a *App) Publisher() Publisher {
	return a.publisher
}

// StartMetrics serves /metrics in the background until ctx is done. It is a
// no-op when no listen address is configured.
func (a *App) StartMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.ListenAddr
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, a.logger.Named("metrics")); err != nil {
			a.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// NewHarvester wires the harvest loop against the configured files.
func (a *App) NewHarvester() (*harvest.Harvester, error) {
	hc := a.cfg.Harvest
	dataset, err := FileStore(hc.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	emails, err := FileStore(hc.EmailsPath)
	if err != nil {
		return nil, fmt.Errorf("emails table: %w", err)
	}
	notAccessible, err := FileStore(hc.NotAccessiblePath)
	if err != nil {
		return nil, fmt.Errorf("not-accessible table: %w", err)
	}

	var fetcher harvest.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.HTTP.UserAgent,
		Timeout:      a.cfg.HTTP.Timeout,
		MaxBodyBytes: a.cfg.HTTP.MaxBodyBytes,
	})
	if a.cfg.HTTP.RequestsPerSecond > 0 {
		fetcher = ratelimit.Wrap(fetcher, ratelimit.New(ratelimit.Config{
			RPS:   a.cfg.HTTP.RequestsPerSecond,
			Burst: a.cfg.HTTP.Burst,
		}, a.recorder.ObserveRateLimitDelay))
	}

	deps := harvest.Dependencies{
		Fetcher:  fetcher,
		Links:    links.NewFinder(),
		IDs:      uuid.New(),
		Recorder: a.recorder,
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	return harvest.New(
		a.cfg.HarvestConfig(),
		harvest.Stores{Dataset: dataset, Emails: emails, NotAccessible: notAccessible},
		deps,
		a.logger.Named("harvest"),
	)
}

// NewSyncer wires the drive sync steps against the configured remote.
func (a *App) NewSyncer(ctx context.Context) (*syncer.Syncer, error) {
	store, err := a.remoteStore(ctx)
	if err != nil {
		return nil, err
	}
	localPath := a.cfg.SyncLocalPath()
	codec, err := CodecFor(localPath)
	if err != nil {
		return nil, err
	}
	rc := a.cfg.Remote
	return syncer.New(syncer.Config{
		LocalPath:      localPath,
		FileID:         rc.FileID,
		FileName:       rc.FileName,
		ParentID:       rc.ParentID,
		AnnotateColumn: rc.AnnotateColumn,
	}, store, codec, a.logger, syncer.WithRecorder(a.recorder))
}

func (a *App) remoteStore(ctx context.Context) (remote.Store, error) {
	rc := a.cfg.Remote
	var opts []option.ClientOption
	if rc.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(rc.Endpoint))
	}

	switch rc.Backend {
	case config.RemoteDrive:
		creds, err := drive.CredentialsFromEnv(rc.CredentialsEnv)
		if err != nil {
			return nil, fmt.Errorf("drive credentials: %w", err)
		}
		a.logger.Info("Using Google Drive remote", zap.String("file_id", rc.FileID))
		return drive.New(ctx, append(opts, creds)...)
	case config.RemoteGCS:
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Info("Using GCS remote", zap.String("bucket", rc.Bucket))
		return gcs.New(client, gcs.Config{Bucket: rc.Bucket, Prefix: rc.Prefix})
	case config.RemoteLocal:
		a.logger.Info("Using local remote", zap.String("base_dir", rc.BaseDir))
		return local.New(local.Config{BaseDir: rc.BaseDir})
	default:
		return nil, fmt.Errorf("unknown remote backend: %s", rc.Backend)
	}
}

// Close releases every service in the container.
func (a *App) Close() {
	a.logger.Debug("Shutting down application services")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// CodecFor picks the table codec from the file extension.
func CodecFor(path string) (table.Codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return xlsx.New(), nil
	case ".csv":
		return tablecsv.New(), nil
	default:
		return nil, fmt.Errorf("unsupported table format %q (want .xlsx or .csv)", path)
	}
}

// FileStore opens a file-backed table store for path.
func FileStore(path string) (*table.FileStore, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}
	return table.NewFileStore(path, codec)
}
