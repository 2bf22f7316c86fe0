package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"mediagrab/internal/core/domain"
	"mediagrab/internal/core/ports"
)

// Orchestrator runs the download workflow for one URL:
// validate, probe, download, resolve, promote.
type Orchestrator struct {
	invoker ports.Invoker
	storage ports.Storage
	logger  *slog.Logger

	inflight singleflight.Group
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(invoker ports.Invoker, storage ports.Storage, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		invoker: invoker,
		storage: storage,
		logger:  logger,
	}
}

// Download validates rawURL and runs the job. Concurrent calls for the same
// URL share a single run and its result.
func (o *Orchestrator) Download(ctx context.Context, rawURL string) (*domain.DownloadResult, error) {
	videoURL, err := domain.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	v, err, shared := o.inflight.Do(videoURL, func() (any, error) {
		return o.RunJob(context.WithoutCancel(ctx), videoURL)
	})
	if shared {
		o.logger.Info("Joined in-flight download", "url", videoURL)
	}
	if err != nil {
		return nil, err
	}
	return v.(*domain.DownloadResult), nil
}

// RunJob executes probe, download and resolution for an already validated URL.
func (o *Orchestrator) RunJob(ctx context.Context, videoURL string) (*domain.DownloadResult, error) {
	job := domain.NewJob(videoURL)
	log := o.logger.With("job", job.ID)
	start := time.Now()

	log.Info("Starting job", "url", job.URL, "platform", job.Platform)

	dir, err := o.storage.InitJob(ctx, job.ID)
	if err != nil {
		log.Error("Failed to init job", "error", err)
		return nil, err
	}
	defer func() {
		if err := o.storage.DiscardJob(context.WithoutCancel(ctx), job.ID); err != nil {
			log.Warn("Failed to remove job directory", "error", err)
		}
	}()

	log.Info("Probing media info")
	info, err := o.invoker.Probe(ctx, videoURL)
	if err != nil {
		logFailure(log, "Probe failed", err)
		return nil, err
	}

	safeTitle := domain.SafeFilename(info.Title)
	expected := domain.ArtifactName(info, domain.RequestedExt)
	log.Info("Downloading", "title", info.Title, "id", info.ID, "formats", info.FormatCount, "file", expected)

	if err := o.invoker.Fetch(ctx, videoURL, filepath.Join(dir, expected)); err != nil {
		logFailure(log, "Download failed", err)
		return nil, err
	}

	path, err := o.storage.Locate(ctx, job.ID, expected, safeTitle, info.ID)
	if err != nil {
		log.Error("Output not found", "error", err)
		return nil, err
	}
	if filepath.Base(path) != expected {
		log.Warn("Tool wrote a different file name", "expected", expected, "actual", filepath.Base(path))
	}

	filename, err := o.storage.Promote(ctx, path)
	if err != nil {
		log.Error("Failed to store artifact", "error", err)
		return nil, err
	}

	log.Info("Job completed", "file", filename, "duration", time.Since(start).Round(time.Millisecond))
	return domain.NewDownloadResult(filename, info.Title, o.invoker.Name()), nil
}

// logFailure logs tool failures; timeouts are expected under load and go out
// as warnings.
func logFailure(log *slog.Logger, msg string, err error) {
	if domain.IsKind(err, domain.KindTimeout) {
		log.Warn(msg, "error", err)
		return
	}
	log.Error(msg, "error", err)
}
