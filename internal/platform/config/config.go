package config

import (
	"time"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Web           WebConfig           `yaml:"web" mapstructure:"web"`
	Recognizer    RecognizerConfig    `yaml:"recognizer" mapstructure:"recognizer"`
	Capture       CaptureConfig       `yaml:"capture" mapstructure:"capture"`
	Blobs         BlobConfig          `yaml:"blobs" mapstructure:"blobs"`
	Archive       ArchiveConfig       `yaml:"archive" mapstructure:"archive"`
	Feedback      FeedbackConfig      `yaml:"feedback" mapstructure:"feedback"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type ServerConfig struct {
	IP   string     `yaml:"ip" mapstructure:"ip"`
	Port int        `yaml:"port" mapstructure:"port"`
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`
}

// AuthConfig toggles bearer-token client identification on the gateway.
type AuthConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Secret  string        `yaml:"secret" mapstructure:"secret"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"log_level" mapstructure:"log_level"`
	Dir    string `yaml:"log_dir" mapstructure:"log_dir"`
	File   string `yaml:"log_file" mapstructure:"log_file"`
	Format string `yaml:"log_format" mapstructure:"log_format"`
}

type WebConfig struct {
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

// RecognizerConfig points at the upstream detection/classification service.
type RecognizerConfig struct {
	BaseURL            string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxResponseBytes   int64         `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
	DefaultContentType string        `yaml:"default_content_type" mapstructure:"default_content_type"`
}

// CaptureConfig bounds what the gateway accepts before forwarding an upload.
type CaptureConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels      int64    `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth       int      `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight      int      `yaml:"max_height" mapstructure:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	EnableDeepScan bool     `yaml:"enable_deep_scan" mapstructure:"enable_deep_scan"`
}

type BlobConfig struct {
	BasePath     string `yaml:"base_path" mapstructure:"base_path"`
	MaxLiveBytes int64  `yaml:"max_live_bytes" mapstructure:"max_live_bytes"`
}

type ArchiveConfig struct {
	Driver       string                `yaml:"driver" mapstructure:"driver"`
	TTL          time.Duration         `yaml:"ttl" mapstructure:"ttl"`
	Cleanup      time.Duration         `yaml:"cleanup" mapstructure:"cleanup"`
	HistoryLimit int                   `yaml:"history_limit" mapstructure:"history_limit"`
	Redis        ArchiveRedisConfig    `yaml:"redis,omitempty" mapstructure:"redis"`
	Postgres     ArchivePostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

type ArchiveRedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type ArchivePostgresConfig struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

type FeedbackConfig struct {
	UploadsDir string   `yaml:"uploads_dir" mapstructure:"uploads_dir"`
	Labels     []string `yaml:"labels" mapstructure:"labels"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}
