package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"mediagrab/internal/logger"
)

// Config holds everything the server needs at startup. It is built once in
// main and handed to each component.
type Config struct {
	Host            string
	Port            string
	OutputDir       string
	IndexPath       string
	YTDLPPath       string
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
	HealthTimeout   time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	loaded := true
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, environment variables might be set manually
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
		loaded = false
	}

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Host:      getEnv("HOST", "0.0.0.0"),
		Port:      getEnv("PORT", "8080"),
		OutputDir: getEnv("OUTPUT_DIR", "./downloads"),
		IndexPath: getEnv("INDEX_PATH", "./web/index.html"),
		YTDLPPath: os.Getenv("YTDLP_PATH"),
	}

	var err error
	if cfg.ProbeTimeout, err = getDuration("PROBE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.DownloadTimeout, err = getDuration("DOWNLOAD_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HealthTimeout, err = getDuration("HEALTH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 2); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logger.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive duration like 30s", key, value)
	}
	return d, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
