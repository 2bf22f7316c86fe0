package ports

import (
	"context"
	"os"

	"mediagrab/internal/core/domain"
)

// Invoker defines the contract for the external extraction tool.
type Invoker interface {
	// Name identifies the backend in responses ("yt-dlp").
	Name() string

	// Probe fetches metadata for the URL without downloading media.
	Probe(ctx context.Context, videoURL string) (*domain.MediaInfo, error)

	// Fetch downloads the media to outputPath. Success only means the
	// tool exited cleanly; the file may carry a different name.
	Fetch(ctx context.Context, videoURL, outputPath string) error

	// Version reports the tool version for health checks.
	Version(ctx context.Context) (string, error)
}

// Storage defines the contract for the output directory.
type Storage interface {
	// InitJob creates the staging directory for a job and returns its path.
	InitJob(ctx context.Context, jobID string) (string, error)

	// Locate finds the artifact a job produced in its staging directory.
	Locate(ctx context.Context, jobID, expectedName, safeTitle, id string) (string, error)

	// Promote moves a located artifact into the served directory and
	// returns its filename.
	Promote(ctx context.Context, path string) (string, error)

	// DiscardJob removes a job's staging directory.
	DiscardJob(ctx context.Context, jobID string) error

	// Open opens a served artifact by name. The caller must close the file.
	Open(name string) (*os.File, *domain.Artifact, error)

	// Cleanup removes every artifact and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)

	// Usage reports disk usage of the output directory.
	Usage(ctx context.Context) (*domain.DiskUsage, error)
}
