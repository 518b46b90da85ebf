// Package config loads runtime settings from the environment with safe
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memory engine daemon.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DataDir       string
	BackupEnabled bool

	CountryPrefix string

	SearchTimeBudget time.Duration
	AttemptTimeout   time.Duration
	ResultCacheSize  int

	// EmbedderModelPath points at a local ONNX model; empty selects the
	// deterministic hash embedder (development mode).
	EmbedderModelPath     string
	EmbedderTokenizerPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("CONVMEM_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("CONVMEM_METRICS_NAMESPACE", "convmem"),
		DataDir:               envOrDefault("CONVMEM_DATA_DIR", ".data"),
		CountryPrefix:         envOrDefault("CONVMEM_COUNTRY_PREFIX", "52"),
		EmbedderModelPath:     strings.TrimSpace(os.Getenv("CONVMEM_ONNX_MODEL_PATH")),
		EmbedderTokenizerPath: strings.TrimSpace(os.Getenv("CONVMEM_ONNX_TOKENIZER_PATH")),
	}

	var err error
	if cfg.ShutdownTimeout, err = envDuration("CONVMEM_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SearchTimeBudget, err = envDuration("CONVMEM_SEARCH_TIME_BUDGET", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AttemptTimeout, err = envDuration("CONVMEM_ATTEMPT_TIMEOUT", 800*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.ResultCacheSize, err = envInt("CONVMEM_RESULT_CACHE_SIZE", 512); err != nil {
		return Config{}, err
	}
	if cfg.BackupEnabled, err = envBool("CONVMEM_BACKUP_ENABLED", true); err != nil {
		return Config{}, err
	}

	if cfg.ResultCacheSize < 16 {
		return Config{}, fmt.Errorf("CONVMEM_RESULT_CACHE_SIZE too small: %d", cfg.ResultCacheSize)
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}
