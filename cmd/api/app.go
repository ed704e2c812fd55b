package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/openfinance/internal/archive"
	"github.com/dvloznov/openfinance/internal/config"
	"github.com/dvloznov/openfinance/internal/gcsuploader"
	infraBQ "github.com/dvloznov/openfinance/internal/infra/bigquery"
	"github.com/dvloznov/openfinance/internal/infra/postgres"
	"github.com/dvloznov/openfinance/internal/infra/sqlite"
	"github.com/dvloznov/openfinance/internal/jobs"
	"github.com/dvloznov/openfinance/internal/jobs/inmemory"
	"github.com/dvloznov/openfinance/internal/notionsync"
	"github.com/dvloznov/openfinance/internal/orchestrator"
	"github.com/dvloznov/openfinance/internal/store"
	memstore "github.com/dvloznov/openfinance/internal/store/inmemory"
	"github.com/rs/zerolog"
)

// openStore connects the configured primary store.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memstore.NewStore(), nil
	case config.BackendSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.BackendBigQuery:
		s, err := infraBQ.NewStore(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("openStore: unknown backend %q", cfg.StoreBackend)
	}
}

// mirrorConfigured reports whether any mirror setting is present. A partial
// configuration still builds a mirror so that every write reports why it was
// skipped.
func mirrorConfigured(cfg config.Config) bool {
	return cfg.NotionToken != "" || cfg.NotionDatabaseID != ""
}

func newMirror(cfg config.Config) *notionsync.Mirror {
	return notionsync.NewMirror(notionsync.Config{
		Token:      cfg.NotionToken,
		DatabaseID: cfg.NotionDatabaseID,
	})
}

// newOrchestrator wires the primary store and, when configured, the mirror.
func newOrchestrator(s store.Store, cfg config.Config, log zerolog.Logger) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{}
	if mirrorConfigured(cfg) {
		mirror := newMirror(cfg)
		if !mirror.Configured() {
			log.Warn().Msg("Notion mirror is incompletely configured; mirror writes will be skipped")
		}
		opts = append(opts, orchestrator.WithMirror(mirror))
	} else {
		log.Info().Msg("Notion mirror disabled")
	}
	return orchestrator.New(s, opts...)
}

// archiveRuntime is the payload archive worker pool.
type archiveRuntime struct {
	queue    *inmemory.Queue
	store    jobs.JobStore
	uploader *gcsuploader.GCSStorageService
	archiver *archive.Archiver
}

// startArchive starts the archive workers when a bucket is configured. It
// returns nil when archiving is disabled.
func startArchive(ctx context.Context, cfg config.Config, log zerolog.Logger) (*archiveRuntime, error) {
	if !cfg.ArchiveEnabled() {
		log.Info().Msg("Payload archive disabled")
		return nil, nil
	}

	target, err := archive.ParseTarget(cfg.ArchiveBucket)
	if err != nil {
		return nil, fmt.Errorf("startArchive: %w", err)
	}

	uploader, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		return nil, fmt.Errorf("startArchive: %w", err)
	}

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(cfg.ArchiveQueueSize, cfg.ArchiveWorkers, jobStore)
	if err := queue.Start(ctx, archive.Handler(uploader, target)); err != nil {
		uploader.Close()
		return nil, fmt.Errorf("startArchive: start workers: %w", err)
	}

	log.Info().
		Str("bucket", target.Bucket).
		Str("prefix", target.Prefix).
		Int("workers", cfg.ArchiveWorkers).
		Msg("Payload archive enabled")

	return &archiveRuntime{
		queue:    queue,
		store:    jobStore,
		uploader: uploader,
		archiver: archive.NewArchiver(queue),
	}, nil
}

// stop drains in-flight uploads and releases the GCS client.
func (a *archiveRuntime) stop(ctx context.Context, log zerolog.Logger) {
	if a == nil {
		return
	}
	if err := a.queue.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Error stopping archive queue")
	}
	if err := a.queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close archive queue")
	}
	if err := a.uploader.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage client")
	}
}
