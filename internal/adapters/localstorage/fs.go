package localstorage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"mediagrab/internal/core/domain"
)

// stagingDirName holds per-job download directories under the output root.
const stagingDirName = ".staging"

// LocalStorage implements ports.Storage for the local filesystem.
// Artifacts live flat in BaseDir; jobs download into BaseDir/.staging/<id>.
type LocalStorage struct {
	BaseDir string
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// Ensure creates the output directory if it does not exist.
func (s *LocalStorage) Ensure() error {
	if err := os.MkdirAll(s.BaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.BaseDir, err)
	}
	return nil
}

// InitJob creates the job staging directory.
func (s *LocalStorage) InitJob(ctx context.Context, jobID string) (string, error) {
	path := s.GetJobPath(jobID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", domain.Fail(domain.KindInternal, "failed to prepare download directory", err)
	}
	return path, nil
}

// GetJobPath returns the staging path for a job ID.
func (s *LocalStorage) GetJobPath(jobID string) string {
	return filepath.Join(s.BaseDir, stagingDirName, jobID)
}

// Locate resolves the artifact inside the job's staging directory.
func (s *LocalStorage) Locate(ctx context.Context, jobID, expectedName, safeTitle, id string) (string, error) {
	dir := s.GetJobPath(jobID)
	return Locate(filepath.Join(dir, expectedName), safeTitle, id, dir)
}

// Promote moves path into the output directory, replacing any artifact of
// the same name, and returns the served filename.
func (s *LocalStorage) Promote(ctx context.Context, path string) (string, error) {
	name := servedName(filepath.Base(path))
	if err := ValidateName(name); err != nil {
		return "", err
	}

	dst := filepath.Join(s.BaseDir, name)
	if err := os.Rename(path, dst); err != nil {
		return "", domain.Fail(domain.KindInternal, "failed to store downloaded file", err)
	}
	return name, nil
}

// DiscardJob removes the job staging directory and everything in it.
func (s *LocalStorage) DiscardJob(ctx context.Context, jobID string) error {
	if err := os.RemoveAll(s.GetJobPath(jobID)); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}
	return nil
}

// Open opens a served artifact. Names are checked before any disk access.
func (s *LocalStorage) Open(name string) (*os.File, *domain.Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}

	path := filepath.Join(s.BaseDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.Fail(domain.KindNotFound, "file not found", nil)
		}
		return nil, nil, domain.Fail(domain.KindInternal, "failed to read file", err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, domain.Fail(domain.KindNotFound, "file not found", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, domain.Fail(domain.KindInternal, "failed to open file", err)
	}

	return f, &domain.Artifact{
		Name:    name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Cleanup removes every regular file directly under the output directory.
// Subdirectories are left alone. The first failure stops the sweep; files
// removed before it stay removed.
func (s *LocalStorage) Cleanup(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return 0, domain.Fail(domain.KindInternal, "cleanup failed: "+domain.Excerpt(err.Error()), err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, domain.Fail(domain.KindInternal, "cleanup interrupted", err)
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(s.BaseDir, entry.Name())); err != nil {
			return removed, domain.Fail(domain.KindInternal, "cleanup failed: "+domain.Excerpt(err.Error()), err)
		}
		removed++
	}
	return removed, nil
}

// Usage reports the filesystem holding the output directory.
func (s *LocalStorage) Usage(ctx context.Context) (*domain.DiskUsage, error) {
	stat, err := disk.UsageWithContext(ctx, s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage: %w", err)
	}
	return &domain.DiskUsage{
		Total:       stat.Total,
		Free:        stat.Free,
		UsedPercent: stat.UsedPercent,
	}, nil
}

// ValidateName rejects anything that could escape the output directory.
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return domain.Fail(domain.KindInvalidInput, "invalid filename", nil)
	}
	return nil
}

// servedName rewrites tool-chosen names the file server would refuse,
// e.g. titles ending in "..." that reached disk through the mtime fallback.
func servedName(name string) string {
	name = strings.ReplaceAll(name, `\`, "_")
	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	return name
}
