package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config.yaml"

	EnvConfigPath    = "SORTVISION_CONFIG"
	EnvRecognizerURL = "SORTVISION_RECOGNIZER_URL"
	EnvPort          = "SORTVISION_PORT"
	EnvLogLevel      = "SORTVISION_LOG_LEVEL"
	EnvAuthSecret    = "SORTVISION_AUTH_SECRET"
)

var knownArchiveDrivers = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"redis":    true,
	"postgres": true,
}

// Loader reads the YAML config file on top of DefaultConfig and applies env overrides.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader for the default path (or $SORTVISION_CONFIG).
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// Path reports which file Load reads.
func (l *Loader) Path() string {
	if l.path != "" {
		return l.path
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load returns the effective configuration. A missing file at the default
// path falls back to DefaultConfig; a missing explicit path is an error.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	path := l.Path()
	explicit := l.path != "" || os.Getenv(EnvConfigPath) != ""

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvRecognizerURL)); v != "" {
		cfg.Recognizer.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvAuthSecret); v != "" {
		cfg.Server.Auth.Secret = v
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Recognizer.BaseURL == "" {
		return fmt.Errorf("recognizer.base_url is required")
	}
	if u, err := url.Parse(cfg.Recognizer.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid recognizer.base_url: %q", cfg.Recognizer.BaseURL)
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	if driver != "" && !knownArchiveDrivers[driver] {
		return fmt.Errorf("unsupported archive driver: %s", cfg.Archive.Driver)
	}
	if cfg.Server.Auth.Enabled && cfg.Server.Auth.Secret == "" {
		return fmt.Errorf("server.auth.secret is required when auth is enabled")
	}
	return nil
}
