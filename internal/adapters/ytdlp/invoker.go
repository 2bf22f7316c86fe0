package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"mediagrab/internal/core/domain"
)

const (
	// FormatSpec prefers formats with a plain http(s) stream so the tool
	// never has to merge fragments from protocols it handles poorly.
	FormatSpec = "bv*[protocol^=http]+ba[protocol^=http]/b[protocol^=http]/bv*+ba/b"

	// MergeFormat is the single container every download is forced into.
	MergeFormat = "mp4"

	// Retries applies to both whole-file and fragment retries.
	Retries = 3

	// VersionUnknown is reported when the tool runs but fails --version.
	VersionUnknown = "unknown"

	DefaultProbeTimeout    = 60 * time.Second
	DefaultDownloadTimeout = 10 * time.Minute
	DefaultVersionTimeout  = 10 * time.Second

	waitDelay = 2 * time.Second
)

// Options configures a YtDlpInvoker. Zero timeouts fall back to the defaults.
type Options struct {
	BinaryPath      string
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
	VersionTimeout  time.Duration
	Logger          *slog.Logger
}

// YtDlpInvoker implements ports.Invoker by running the yt-dlp binary.
type YtDlpInvoker struct {
	binaryPath      string
	probeTimeout    time.Duration
	downloadTimeout time.Duration
	versionTimeout  time.Duration
	logger          *slog.Logger
}

// NewYtDlpInvoker creates a new invoker.
func NewYtDlpInvoker(opts Options) *YtDlpInvoker {
	d := &YtDlpInvoker{
		binaryPath:      ResolveBinary(opts.BinaryPath),
		probeTimeout:    opts.ProbeTimeout,
		downloadTimeout: opts.DownloadTimeout,
		versionTimeout:  opts.VersionTimeout,
		logger:          opts.Logger,
	}
	if d.probeTimeout <= 0 {
		d.probeTimeout = DefaultProbeTimeout
	}
	if d.downloadTimeout <= 0 {
		d.downloadTimeout = DefaultDownloadTimeout
	}
	if d.versionTimeout <= 0 {
		d.versionTimeout = DefaultVersionTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// ResolveBinary picks the yt-dlp executable: an explicit path wins, then a
// yt-dlp.exe next to the working directory, then yt-dlp from PATH.
func ResolveBinary(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("yt-dlp.exe"); err == nil {
		return ".\\yt-dlp.exe"
	}
	return "yt-dlp"
}

// Name identifies the backend.
func (d *YtDlpInvoker) Name() string {
	return "yt-dlp"
}

// BinaryPath returns the resolved executable.
func (d *YtDlpInvoker) BinaryPath() string {
	return d.binaryPath
}

// ProbeArgs returns the metadata-only invocation for videoURL.
func ProbeArgs(videoURL string) []string {
	return []string{"--dump-json", "--no-download", "--no-warnings", videoURL}
}

// FetchArgs returns the download invocation writing to outputPath.
func FetchArgs(videoURL, outputPath string) []string {
	return []string{
		"-f", FormatSpec,
		"-o", escapeTemplate(outputPath),
		"--no-playlist",
		"--no-warnings",
		"--merge-output-format", MergeFormat,
		"--retries", fmt.Sprint(Retries),
		"--fragment-retries", fmt.Sprint(Retries),
		videoURL,
	}
}

// yt-dlp expands %(field)s in -o, so a literal percent must be doubled.
func escapeTemplate(path string) string {
	return strings.ReplaceAll(path, "%", "%%")
}

type probeOutput struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Duration    *float64          `json:"duration"`
	Uploader    string            `json:"uploader"`
	UploadDate  string            `json:"upload_date"`
	ViewCount   *int64            `json:"view_count"`
	Description string            `json:"description"`
	Formats     []json.RawMessage `json:"formats"`
}

// Probe runs yt-dlp --dump-json and decodes the result.
func (d *YtDlpInvoker) Probe(ctx context.Context, videoURL string) (*domain.MediaInfo, error) {
	stdout, stderr, err := d.run(ctx, d.probeTimeout, ProbeArgs(videoURL)...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Fail(domain.KindTimeout, "media info request timed out, please retry later", err)
		}
		return nil, domain.Fail(domain.KindProbe, "could not read media info: "+failureDetail(stderr, err), err)
	}

	return ParseProbeOutput(stdout)
}

// ParseProbeOutput decodes --dump-json output into MediaInfo with defaults applied.
func ParseProbeOutput(data []byte) (*domain.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(bytes.TrimSpace(data), &out); err != nil {
		return nil, domain.Fail(domain.KindParse, "could not parse media info", err)
	}

	info := &domain.MediaInfo{
		ID:          out.ID,
		Title:       out.Title,
		Duration:    out.Duration,
		Uploader:    out.Uploader,
		UploadDate:  out.UploadDate,
		ViewCount:   out.ViewCount,
		Description: out.Description,
		FormatCount: len(out.Formats),
	}
	info.ApplyDefaults()
	return info, nil
}

// Fetch downloads videoURL to outputPath.
func (d *YtDlpInvoker) Fetch(ctx context.Context, videoURL, outputPath string) error {
	_, stderr, err := d.run(ctx, d.downloadTimeout, FetchArgs(videoURL, outputPath)...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Fail(domain.KindTimeout, "download timed out, please retry later", err)
		}
		return domain.Fail(domain.KindDownload, "download failed: "+failureDetail(stderr, err), err)
	}
	return nil
}

// Version runs yt-dlp --version. A tool that starts but exits non-zero
// reports VersionUnknown; a tool that cannot start returns an error.
func (d *YtDlpInvoker) Version(ctx context.Context) (string, error) {
	stdout, _, err := d.run(ctx, d.versionTimeout, "--version")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return VersionUnknown, nil
		}
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// run executes the binary with a deadline. On timeout the process is killed
// and the returned error wraps context.DeadlineExceeded.
func (d *YtDlpInvoker) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binaryPath, args...)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	d.logger.Debug("Running tool", "cmd", shellescape.QuoteCommand(append([]string{d.binaryPath}, args...)))
	start := time.Now()

	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.logger.Warn("Tool timed out", "timeout", timeout, "args", len(args))
		return nil, stderr.String(), fmt.Errorf("yt-dlp exceeded %s: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		d.logger.Error("Tool failed", "error", err, "stderr", domain.Excerpt(stderr.String()))
		return out.Bytes(), stderr.String(), fmt.Errorf("yt-dlp failed: %w", err)
	}

	d.logger.Debug("Tool finished", "duration", time.Since(start).Round(time.Millisecond))
	return out.Bytes(), stderr.String(), nil
}

func failureDetail(stderr string, err error) string {
	if msg := domain.Excerpt(stderr); msg != "" {
		return msg
	}
	return domain.Excerpt(err.Error())
}
