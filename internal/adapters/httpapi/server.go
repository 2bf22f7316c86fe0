package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"mediagrab/internal/core/domain"
	"mediagrab/internal/service"
)

// Downloader runs a download request end to end.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*domain.DownloadResult, error)
}

// Housekeeping reports health and empties the output directory.
type Housekeeping interface {
	Health(ctx context.Context) service.HealthReport
	Cleanup(ctx context.Context) (int, error)
}

// FileOpener opens served artifacts by name.
type FileOpener interface {
	Open(name string) (*os.File, *domain.Artifact, error)
}

// Server holds the HTTP handlers.
type Server struct {
	downloader Downloader
	house      Housekeeping
	files      FileOpener
	indexPath  string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Options wires a Server.
type Options struct {
	Downloader   Downloader
	Housekeeping Housekeeping
	Files        FileOpener
	IndexPath    string
	Limiter      *rate.Limiter // nil disables throttling
	Logger       *slog.Logger
}

// NewServer creates a new Server.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		downloader: opts.Downloader,
		house:      opts.Housekeeping,
		files:      opts.Files,
		indexPath:  opts.IndexPath,
		limiter:    opts.Limiter,
		logger:     log,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.With(rateLimit(s.limiter, s.logger)).Post("/download", s.handleDownload)
		r.Get("/file/{filename}", s.handleFile)
		r.Get("/health", s.handleHealth)
		r.Get("/supported-platforms", s.handleSupportedPlatforms)
		r.Delete("/cleanup", s.handleCleanup)
	})
	return r
}
