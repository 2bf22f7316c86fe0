package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediagrab/internal/adapters/localstorage"
	"mediagrab/internal/core/domain"
)

// fakeInvoker stands in for the external tool.
type fakeInvoker struct {
	info     *domain.MediaInfo
	probeErr error
	fetchErr error
	// ext replaces the requested extension when writing the output.
	ext string
	// release, when set, blocks Fetch until closed.
	release chan struct{}

	version    string
	versionErr error

	probes  atomic.Int32
	fetches atomic.Int32
}

func (f *fakeInvoker) Name() string { return "yt-dlp" }

func (f *fakeInvoker) Probe(ctx context.Context, videoURL string) (*domain.MediaInfo, error) {
	f.probes.Add(1)
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	info := *f.info
	return &info, nil
}

func (f *fakeInvoker) Fetch(ctx context.Context, videoURL, outputPath string) error {
	f.fetches.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.fetchErr != nil {
		return f.fetchErr
	}
	if f.ext != "" {
		outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + f.ext
	}
	return os.WriteFile(outputPath, []byte("media"), 0644)
}

func (f *fakeInvoker) Version(ctx context.Context) (string, error) {
	return f.version, f.versionErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, inv *fakeInvoker) (*Orchestrator, string) {
	t.Helper()
	base := t.TempDir()
	return NewOrchestrator(inv, localstorage.NewLocalStorage(base), discardLogger()), base
}

func TestDownloadRejectsInvalidURLWithoutCallingTool(t *testing.T) {
	inv := &fakeInvoker{info: &domain.MediaInfo{ID: "x", Title: "t"}}
	o, _ := newTestOrchestrator(t, inv)

	for _, raw := range []string{"", "ftp://example.com/a", "https://", "not a url"} {
		_, err := o.Download(context.Background(), raw)
		if !domain.IsKind(err, domain.KindInvalidInput) {
			t.Errorf("Download(%q) = %v, want invalid input", raw, err)
		}
	}
	if n := inv.probes.Load() + inv.fetches.Load(); n != 0 {
		t.Errorf("tool was invoked %d times for invalid input", n)
	}
}

func TestDownloadSuccess(t *testing.T) {
	inv := &fakeInvoker{info: &domain.MediaInfo{ID: "abc123", Title: "Test Video"}}
	o, base := newTestOrchestrator(t, inv)

	res, err := o.Download(context.Background(), "https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Filename != "Test Video_abc123.mp4" || res.Title != "Test Video" || res.Source != "yt-dlp" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.DownloadURL != "/api/file/Test%20Video_abc123.mp4" {
		t.Errorf("DownloadURL = %q", res.DownloadURL)
	}
	if _, err := os.Stat(filepath.Join(base, res.Filename)); err != nil {
		t.Errorf("artifact not in output directory: %v", err)
	}

	staging, err := os.ReadDir(filepath.Join(base, ".staging"))
	if err != nil {
		t.Fatal(err)
	}
	if len(staging) != 0 {
		t.Errorf("staging directory not discarded: %v", staging)
	}
}

func TestDownloadSubstitutedExtension(t *testing.T) {
	inv := &fakeInvoker{info: &domain.MediaInfo{ID: "abc123", Title: "Test Video"}, ext: ".mkv"}
	o, _ := newTestOrchestrator(t, inv)

	res, err := o.Download(context.Background(), "https://example.com/v")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Filename != "Test Video_abc123.mkv" {
		t.Errorf("Filename = %q, want the .mkv artifact", res.Filename)
	}
}

func TestDownloadProbeFailureSkipsFetch(t *testing.T) {
	inv := &fakeInvoker{probeErr: domain.Fail(domain.KindProbe, "could not read media info: ERROR: Unsupported URL", nil)}
	o, _ := newTestOrchestrator(t, inv)

	_, err := o.Download(context.Background(), "https://example.com/v")
	if !domain.IsKind(err, domain.KindProbe) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if inv.fetches.Load() != 0 {
		t.Error("Fetch must not run after a failed probe")
	}
}

func TestDownloadProbeTimeoutIsDistinct(t *testing.T) {
	inv := &fakeInvoker{probeErr: domain.Fail(domain.KindTimeout, "media info request timed out, please retry later", context.DeadlineExceeded)}
	o, _ := newTestOrchestrator(t, inv)

	_, err := o.Download(context.Background(), "https://example.com/v")
	if !domain.IsKind(err, domain.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if domain.IsKind(err, domain.KindProbe) {
		t.Error("timeout must not be reported as a probe error")
	}
	if inv.fetches.Load() != 0 {
		t.Error("Fetch must not run after a probe timeout")
	}
}

func TestDownloadTimeoutLogsWarning(t *testing.T) {
	var logs bytes.Buffer
	inv := &fakeInvoker{probeErr: domain.Fail(domain.KindTimeout, "media info request timed out, please retry later", context.DeadlineExceeded)}
	o := NewOrchestrator(inv, localstorage.NewLocalStorage(t.TempDir()), slog.New(slog.NewTextHandler(&logs, nil)))

	if _, err := o.Download(context.Background(), "https://example.com/v"); err == nil {
		t.Fatal("expected an error")
	}
	out := logs.String()
	if !strings.Contains(out, `level=WARN msg="Probe failed"`) {
		t.Errorf("timeout should log a warning: %q", out)
	}
	if strings.Contains(out, "level=ERROR") {
		t.Errorf("timeout should not log at error level: %q", out)
	}

	logs.Reset()
	inv.probeErr = domain.Fail(domain.KindProbe, "could not read media info: boom", nil)
	if _, err := o.Download(context.Background(), "https://example.com/v"); err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(logs.String(), `level=ERROR msg="Probe failed"`) {
		t.Errorf("probe failure should log an error: %q", logs.String())
	}
}

func TestDownloadFetchFailure(t *testing.T) {
	inv := &fakeInvoker{
		info:     &domain.MediaInfo{ID: "abc", Title: "T"},
		fetchErr: domain.Fail(domain.KindDownload, "download failed: boom", nil),
	}
	o, base := newTestOrchestrator(t, inv)

	_, err := o.Download(context.Background(), "https://example.com/v")
	if !domain.IsKind(err, domain.KindDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	if entries, _ := os.ReadDir(filepath.Join(base, ".staging")); len(entries) != 0 {
		t.Errorf("staging directory left behind after failure: %v", entries)
	}
}

func TestDownloadMissingArtifact(t *testing.T) {
	inv := &noOutputInvoker{fakeInvoker: &fakeInvoker{info: &domain.MediaInfo{ID: "abc", Title: "T"}}}
	o := NewOrchestrator(inv, localstorage.NewLocalStorage(t.TempDir()), discardLogger())

	_, err := o.Download(context.Background(), "https://example.com/v")
	if !domain.IsKind(err, domain.KindArtifactMissing) {
		t.Errorf("expected artifact missing, got %v", err)
	}
}

// noOutputInvoker exits cleanly without writing anything.
type noOutputInvoker struct {
	*fakeInvoker
}

func (n *noOutputInvoker) Fetch(ctx context.Context, videoURL, outputPath string) error {
	n.fetches.Add(1)
	return nil
}

func TestDownloadSharesInflightRun(t *testing.T) {
	inv := &fakeInvoker{
		info:    &domain.MediaInfo{ID: "abc", Title: "Shared"},
		release: make(chan struct{}),
	}
	o, _ := newTestOrchestrator(t, inv)

	const callers = 3
	var wg sync.WaitGroup
	results := make([]*domain.DownloadResult, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Download(context.Background(), "https://example.com/v")
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(inv.release)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Filename != "Shared_abc.mp4" {
			t.Errorf("caller %d got %q", i, results[i].Filename)
		}
	}
	if n := inv.probes.Load(); n != 1 {
		t.Errorf("probe ran %d times, want 1", n)
	}
}

func TestDownloadIgnoresClientCancel(t *testing.T) {
	inv := &fakeInvoker{info: &domain.MediaInfo{ID: "abc", Title: "T"}}
	o, _ := newTestOrchestrator(t, inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Download(ctx, "https://example.com/v"); err != nil {
		t.Errorf("canceled client context should not abort the job: %v", err)
	}
}

func TestHealth(t *testing.T) {
	storage := localstorage.NewLocalStorage(t.TempDir())

	h := NewHousekeeper(&fakeInvoker{version: "2024.12.13"}, storage, discardLogger())
	report := h.Health(context.Background())
	if report.Status != "healthy" || report.API != "yt-dlp" || report.ToolVersion != "2024.12.13" {
		t.Errorf("unexpected report: %+v", report)
	}
	if !strings.HasPrefix(report.GoVersion, "go") && !strings.HasPrefix(report.GoVersion, "devel") {
		t.Errorf("GoVersion = %q", report.GoVersion)
	}

	h = NewHousekeeper(&fakeInvoker{versionErr: errors.New("exec: not found")}, storage, discardLogger())
	report = h.Health(context.Background())
	if report.Status != "healthy" || report.ToolVersion != ToolNotAvailable {
		t.Errorf("unusable tool should still be healthy with %q: %+v", ToolNotAvailable, report)
	}
}

func TestCleanup(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mp4"} {
		if err := os.WriteFile(filepath.Join(base, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	h := NewHousekeeper(&fakeInvoker{}, localstorage.NewLocalStorage(base), discardLogger())

	removed, err := h.Cleanup(context.Background())
	if err != nil || removed != 2 {
		t.Errorf("Cleanup() = %d, %v; want 2, nil", removed, err)
	}
}
