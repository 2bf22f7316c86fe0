package domain

import (
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is used when the tool reports no title or the title
	// sanitizes to nothing.
	DefaultTitle = "video"

	// RequestedExt is the container asked from the tool via --merge-output-format.
	RequestedExt = ".mp4"

	maxSafeTitleLen = 50
)

// DownloadRequest is the body of POST /api/download.
type DownloadRequest struct {
	URL string `json:"url"`
}

// Job represents a single download request while it is being processed.
type Job struct {
	ID       string
	URL      string
	Platform string // host-derived label, for logs only
}

// NewJob creates a job with a fresh id for a validated URL.
func NewJob(videoURL string) Job {
	return Job{
		ID:       uuid.New().String(),
		URL:      videoURL,
		Platform: DetectPlatform(videoURL),
	}
}

// DetectPlatform labels well-known hosts; anything else is "other".
func DetectPlatform(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return "other"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtu.be" || strings.HasSuffix(host, "youtube.com"):
		return "youtube"
	case strings.HasSuffix(host, "tiktok.com"):
		return "tiktok"
	case strings.HasSuffix(host, "instagram.com"):
		return "instagram"
	case host == "x.com" || strings.HasSuffix(host, "twitter.com"):
		return "twitter"
	case strings.HasSuffix(host, "vimeo.com"):
		return "vimeo"
	case strings.HasSuffix(host, "bilibili.com"):
		return "bilibili"
	}
	return "other"
}

// MediaInfo holds the fields of a probe result the service cares about.
// It is built once per request and never stored.
type MediaInfo struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Duration    *float64 `json:"duration,omitempty"`
	Uploader    string   `json:"uploader,omitempty"`
	UploadDate  string   `json:"upload_date,omitempty"`
	ViewCount   *int64   `json:"view_count,omitempty"`
	Description string   `json:"description,omitempty"`
	FormatCount int      `json:"format_count,omitempty"`
}

// ApplyDefaults fills a missing title or id the same way for every backend.
func (m *MediaInfo) ApplyDefaults() {
	if strings.TrimSpace(m.Title) == "" {
		m.Title = DefaultTitle
	}
	if m.ID == "" {
		m.ID = uuid.New().String()[:8]
	}
}

// DownloadResult is returned to the client once the artifact is in place.
type DownloadResult struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
	Title       string `json:"title"`
	Source      string `json:"source"`
}

// NewDownloadResult builds the success response for a served filename.
func NewDownloadResult(filename, title, source string) *DownloadResult {
	return &DownloadResult{
		Success:     true,
		DownloadURL: FileURL(filename),
		Filename:    filename,
		Title:       title,
		Source:      source,
	}
}

// FileURL is the path under which the file server exposes an artifact.
func FileURL(filename string) string {
	return "/api/file/" + url.PathEscape(filename)
}

// Artifact describes a downloaded file in the output directory.
type Artifact struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// DiskUsage reports the filesystem holding the output directory.
type DiskUsage struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// SafeFilename keeps letters, numbers, spaces, hyphens and underscores of
// title, trims it and cuts it to 50 characters.
func SafeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	safe := []rune(strings.TrimSpace(b.String()))
	if len(safe) > maxSafeTitleLen {
		safe = safe[:maxSafeTitleLen]
	}
	if len(safe) == 0 {
		return DefaultTitle
	}
	return string(safe)
}

// ArtifactName is the filename the tool is asked to produce for info.
func ArtifactName(info *MediaInfo, ext string) string {
	return SafeFilename(info.Title) + "_" + info.ID + ext
}

// ValidateURL trims raw and checks that it is an absolute http(s) URL.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", Fail(KindInvalidInput, "url is required", nil)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", Fail(KindInvalidInput, "unsupported url", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", Fail(KindInvalidInput, "unsupported url", nil)
	}
	return trimmed, nil
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
}

// ContentType maps an artifact name to its MIME type by extension.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
