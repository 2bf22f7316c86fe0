package service

import (
	"context"
	"log/slog"
	"runtime"

	"mediagrab/internal/core/domain"
	"mediagrab/internal/core/ports"
)

// ToolNotAvailable is reported when the tool cannot be started at all.
const ToolNotAvailable = "not available"

// HealthReport is the body of GET /api/health.
type HealthReport struct {
	Status      string            `json:"status"`
	API         string            `json:"api"`
	ToolVersion string            `json:"toolVersion"`
	GoVersion   string            `json:"goVersion"`
	Disk        *domain.DiskUsage `json:"disk,omitempty"`
}

// Housekeeper handles health reporting and output directory cleanup.
type Housekeeper struct {
	invoker ports.Invoker
	storage ports.Storage
	logger  *slog.Logger
}

// NewHousekeeper creates a new Housekeeper.
func NewHousekeeper(invoker ports.Invoker, storage ports.Storage, logger *slog.Logger) *Housekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Housekeeper{invoker: invoker, storage: storage, logger: logger}
}

// Health never fails: an unusable tool shows up as ToolNotAvailable.
func (h *Housekeeper) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "healthy",
		API:       h.invoker.Name(),
		GoVersion: runtime.Version(),
	}

	version, err := h.invoker.Version(ctx)
	if err != nil {
		h.logger.Warn("Tool version check failed", "error", err)
		version = ToolNotAvailable
	}
	report.ToolVersion = version

	if usage, err := h.storage.Usage(ctx); err == nil {
		report.Disk = usage
	} else {
		h.logger.Debug("Disk usage unavailable", "error", err)
	}
	return report
}

// Cleanup deletes every artifact in the output directory.
func (h *Housekeeper) Cleanup(ctx context.Context) (int, error) {
	removed, err := h.storage.Cleanup(ctx)
	if err != nil {
		h.logger.Error("Cleanup failed", "removed", removed, "error", err)
		return removed, err
	}
	h.logger.Info("Output directory cleaned", "removed", removed)
	return removed, nil
}
