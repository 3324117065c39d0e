// Package config handles pipeline configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"loan-pipeline/internal/domain"
)

// Default values shared by the CLI and the local runner.
const (
	DefaultTable     = "raw_loans"
	DefaultRawPrefix = "raw/loans"
	DefaultMetaDB    = "pipeline_meta.sqlite"
)

// Config holds process-wide settings sourced from the environment.
type Config struct {
	Env       string // "development" (default) or "production"
	LogLevel  string // debug, info, warn, error (default "info")
	LogFormat string // text (default) or json

	Root          string // project root; all default paths hang off it
	MetaDBPath    string // SQLite run ledger
	IngestionMode string // default mode for the local runner

	RawBucket string // RAW_S3_BUCKET; may carry a gs:// or az:// scheme
	RawPrefix string // RAW_S3_PREFIX

	// S3 fields are optional; nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string
	S3URLStyle string // "path" (default) or "vhost"

	GCSKeyFile string

	AzureAccountName string
	AzureAccountKey  string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// IsProduction returns true when the pipeline runs in production mode.
// Production runs mirror snapshots to object storage.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasS3Config returns true if the S3 credentials and region are set. The
// endpoint is optional; without it the AWS endpoint for the region is used.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil && c.S3Region != nil
}

// Paths returns the default project paths rooted at c.Root.
func (c *Config) Paths() Paths {
	p := NewPaths(c.Root)
	if c.MetaDBPath != "" {
		p.LedgerPath = c.MetaDBPath
	}
	return p
}

// LoadFromEnv loads configuration from environment variables.
// Object storage variables are optional and only needed to publish.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Env:              os.Getenv("ENV"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogFormat:        os.Getenv("LOG_FORMAT"),
		Root:             os.Getenv("PIPELINE_ROOT"),
		MetaDBPath:       os.Getenv("META_DB_PATH"),
		IngestionMode:    os.Getenv("INGESTION_MODE"),
		RawBucket:        strings.TrimSpace(os.Getenv("RAW_S3_BUCKET")),
		RawPrefix:        os.Getenv("RAW_S3_PREFIX"),
		S3URLStyle:       os.Getenv("S3_URL_STYLE"),
		GCSKeyFile:       os.Getenv("GCS_KEY_FILE"),
		AzureAccountName: os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:  os.Getenv("AZURE_ACCOUNT_KEY"),
	}

	// ENVIRONMENT is what the scheduler sets; ENV wins when both are present.
	if cfg.Env == "" {
		cfg.Env = os.Getenv("ENVIRONMENT")
	}

	cfg.S3KeyID = firstEnv("KEY_ID", "AWS_ACCESS_KEY_ID")
	cfg.S3Secret = firstEnv("SECRET", "AWS_SECRET_ACCESS_KEY")
	cfg.S3Endpoint = firstEnv("ENDPOINT", "AWS_ENDPOINT_URL_S3", "AWS_ENDPOINT_URL")
	cfg.S3Region = firstEnv("REGION", "AWS_REGION", "AWS_DEFAULT_REGION")

	// Defaults
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = filepath.Join(cfg.Root, DefaultMetaDB)
	}
	if cfg.RawPrefix == "" {
		cfg.RawPrefix = DefaultRawPrefix
	}
	if cfg.S3URLStyle == "" {
		cfg.S3URLStyle = "path"
	}
	if cfg.IngestionMode == "" {
		cfg.IngestionMode = string(domain.ModeFullRefresh)
	}
	if _, err := domain.ParseMode(cfg.IngestionMode); err != nil {
		return nil, fmt.Errorf("INGESTION_MODE: %w", err)
	}

	if cfg.IsProduction() && cfg.RawBucket == "" {
		cfg.Warnings = append(cfg.Warnings, "ENV=production but RAW_S3_BUCKET is not set; snapshots will not be mirrored")
	}

	return cfg, nil
}

// firstEnv returns the value of the first non-empty variable in keys.
func firstEnv(keys ...string) *string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return &v
		}
	}
	return nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
