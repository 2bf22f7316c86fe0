package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediagrab/internal/adapters/httpapi"
	"mediagrab/internal/adapters/localstorage"
	"mediagrab/internal/adapters/ytdlp"
	"mediagrab/internal/config"
	"mediagrab/internal/logger"
	"mediagrab/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Parse flags
	addr := flag.String("addr", cfg.Addr(), "Listen address (host:port)")
	outputDir := flag.String("output-dir", cfg.OutputDir, "Directory for downloaded files")
	flag.Parse()

	if host, port, err := net.SplitHostPort(*addr); err == nil {
		cfg.Host, cfg.Port = host, port
	} else {
		fmt.Fprintf(os.Stderr, "invalid -addr %q: %v\n", *addr, err)
		os.Exit(1)
	}
	cfg.OutputDir = *outputDir

	// Setup logger
	log := logger.New(os.Stdout, cfg.LogLevel)
	if !cfg.EnvFileLoaded {
		log.Debug("No .env file found")
	}

	log.Info("=== mediagrab ===")
	log.Info("Configuration", "addr", cfg.Addr(), "output_dir", cfg.OutputDir, "index", cfg.IndexPath)

	// Initialize adapters
	storage := localstorage.NewLocalStorage(cfg.OutputDir)
	if err := storage.Ensure(); err != nil {
		log.Error("Failed to prepare output directory", "error", err)
		os.Exit(1)
	}

	invoker := ytdlp.NewYtDlpInvoker(ytdlp.Options{
		BinaryPath:      cfg.YTDLPPath,
		ProbeTimeout:    cfg.ProbeTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		VersionTimeout:  cfg.HealthTimeout,
		Logger:          log,
	})
	log.Info("Using extraction tool", "binary", invoker.BinaryPath())

	// Create services
	orchestrator := service.NewOrchestrator(invoker, storage, log)
	housekeeper := service.NewHousekeeper(invoker, storage, log)

	api := httpapi.NewServer(httpapi.Options{
		Downloader:   orchestrator,
		Housekeeping: housekeeper,
		Files:        storage,
		IndexPath:    cfg.IndexPath,
		Limiter:      httpapi.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // downloads and file transfers can run for minutes
		IdleTimeout:       120 * time.Second,
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("Received interrupt signal, shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
