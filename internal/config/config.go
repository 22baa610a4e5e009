// Package config provides YAML-based configuration with environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. TLDR_SUMMARIZER_ENDPOINT for summarizer.endpoint.
const EnvPrefix = "TLDR"

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Summarizer SummarizerConfig `yaml:"summarizer" mapstructure:"summarizer"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port" mapstructure:"port"`
	BindAddress          string `yaml:"bind_address" mapstructure:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors" mapstructure:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins" mapstructure:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
	ShutdownTimeout      int    `yaml:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit" mapstructure:"body_limit"`
	EnableCompression    bool   `yaml:"enable_compression" mapstructure:"enable_compression"`
	CompressionLevel     int    `yaml:"compression_level" mapstructure:"compression_level"`
	EnableRequestLogging bool   `yaml:"enable_request_logging" mapstructure:"enable_request_logging"`
	ShowErrorDetails     bool   `yaml:"show_error_details" mapstructure:"show_error_details"` // include causes of 5xx errors in responses
}

// SummarizerConfig describes the remote summarization endpoint
type SummarizerConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	FieldName      string `yaml:"field_name" mapstructure:"field_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"` // 0 = no timeout
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`         // retries on HTTP 429
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory" mapstructure:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory" mapstructure:"uploads_directory"`
}

// SessionConfig controls browser sessions
type SessionConfig struct {
	MaxSessions            int    `yaml:"max_sessions" mapstructure:"max_sessions"`
	TimeoutMinutes         int    `yaml:"timeout_minutes" mapstructure:"timeout_minutes"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes" mapstructure:"cleanup_interval_minutes"`
	CookieName             string `yaml:"cookie_name" mapstructure:"cookie_name"`
	CookieSecure           bool   `yaml:"cookie_secure" mapstructure:"cookie_secure"`
}

// CacheConfig controls the DuckDB summary cache
type CacheConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Path        string `yaml:"path" mapstructure:"path"`
	MemoryLimit string `yaml:"memory_limit" mapstructure:"memory_limit"`
	Threads     int    `yaml:"threads" mapstructure:"threads"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8080,
			BindAddress:          "0.0.0.0",
			EnableCORS:           false,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			ShutdownTimeout:      15,
			BodyLimit:            "50M",
			EnableCompression:    true,
			CompressionLevel:     5,
			EnableRequestLogging: true,
			ShowErrorDetails:     false,
		},
		Summarizer: SummarizerConfig{
			Endpoint:       "http://localhost:5001/summarize",
			FieldName:      "pdf",
			TimeoutSeconds: 300,
			MaxRetries:     0,
			UserAgent:      "tldr-uploader",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
		},
		Session: SessionConfig{
			MaxSessions:            256,
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
			CookieName:             "tldr_session",
			CookieSecure:           false,
		},
		Cache: CacheConfig{
			Enabled:     false,
			Path:        "./data/summaries.duckdb",
			MemoryLimit: "256MB",
			Threads:     2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults. TLDR_* environment variables override file values.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := DefaultConfig().Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v := viper.New()
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults registers every key of defaults with viper so that
// environment variables are picked up for keys missing from the file.
func setDefaults(v *viper.Viper, defaults *AppConfig) error {
	raw, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	flatten("", tree, func(key string, value interface{}) {
		v.SetDefault(key, value)
	})
	return nil
}

func flatten(prefix string, tree map[string]interface{}, set func(string, interface{})) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	header := []byte("# tl;dr uploader configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides honours the conventional unprefixed variables
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		old := c.Storage.DataDirectory
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = rebase(c.Storage.UploadsDirectory, old, dataDir)
		c.Cache.Path = rebase(c.Cache.Path, old, dataDir)
	}
}

// rebase moves p under newDir if it lives under oldDir, so paths derived
// from the data directory follow it. Paths set elsewhere are kept.
func rebase(p, oldDir, newDir string) string {
	if p == "" || oldDir == "" {
		return p
	}
	rel, err := filepath.Rel(filepath.Clean(oldDir), filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.Join(newDir, rel)
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.DataDirectory, &c.Storage.UploadsDirectory, &c.Cache.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	u, err := url.Parse(c.Summarizer.Endpoint)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("summarizer.endpoint: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("summarizer.endpoint must be an http(s) URL: %q", c.Summarizer.Endpoint))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("summarizer.endpoint has no host: %q", c.Summarizer.Endpoint))
	}

	if c.Summarizer.FieldName == "" {
		errs = append(errs, errors.New("summarizer.field_name must not be empty"))
	}
	if c.Summarizer.TimeoutSeconds < 0 || c.Summarizer.MaxRetries < 0 {
		errs = append(errs, errors.New("summarizer timeout and retries must not be negative"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console: %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SummarizerTimeout returns the per-request timeout, zero meaning none
func (c *AppConfig) SummarizerTimeout() time.Duration {
	return time.Duration(c.Summarizer.TimeoutSeconds) * time.Second
}

// SessionTimeout returns how long an idle session is kept
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle sessions are swept
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Session.CleanupIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}
	if c.Cache.Enabled {
		dirs = append(dirs, filepath.Dir(c.Cache.Path))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
