package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"

	"mediagrab/internal/core/domain"
)

const maxRequestBody = 1 << 20

// SupportedPlatforms is a sample of what the tool can extract.
var SupportedPlatforms = []string{
	"YouTube",
	"TikTok",
	"Instagram",
	"Twitter/X",
	"Reddit",
	"Pinterest",
	"Tumblr",
	"Vimeo",
	"Dailymotion",
	"Bilibili",
	"and more...",
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.indexPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondError(w, s.logger, domain.Fail(domain.KindNotFound, "index.html not found", nil))
			return
		}
		respondError(w, s.logger, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondError(w, s.logger, domain.Fail(domain.KindNotFound, "index.html not found", nil))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, "index.html", info.ModTime(), f)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req domain.DownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, s.logger, domain.Fail(domain.KindInvalidInput, "invalid request body", err))
		return
	}

	result, err := s.downloader.Download(r.Context(), req.URL)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the path carries escapes such as %2F,
	// leaving the segment encoded.
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(name)
		if err != nil {
			respondError(w, s.logger, domain.Fail(domain.KindInvalidInput, "invalid filename", err))
			return
		}
		name = unescaped
	}

	f, artifact, err := s.files.Open(name)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	defer f.Close()

	s.logger.Info("Serving file", "file", artifact.Name, "size", artifact.Size)
	w.Header().Set("Content-Type", domain.ContentType(artifact.Name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Name}))
	http.ServeContent(w, r, artifact.Name, artifact.ModTime, f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.house.Health(r.Context()))
}

func (s *Server) handleSupportedPlatforms(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"platforms": SupportedPlatforms,
		"note":      "yt-dlp supports 1000+ sites",
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.house.Cleanup(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "download directory cleaned",
		"removed": removed,
	})
}
