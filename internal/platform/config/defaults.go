package config

import "time"

// DefaultLabels are the waste categories an operator may assign in feedback.
var DefaultLabels = []string{
	"bio",
	"papier",
	"plastik i metal",
	"szklo",
	"odpady komunalne",
	"zmieszane",
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
			Auth: AuthConfig{
				Enabled: false,
				TTL:     24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			StaticDir: "./web",
		},
		Recognizer: RecognizerConfig{
			BaseURL:            "http://localhost:5000",
			Timeout:            60 * time.Second,
			MaxResponseBytes:   64 * 1024 * 1024,
			DefaultContentType: "image/webp",
		},
		Capture: CaptureConfig{
			MaxFileSize:    16 * 1024 * 1024,
			MaxPixels:      50000000,
			MaxWidth:       10000,
			MaxHeight:      10000,
			AllowedFormats: []string{"jpeg", "jpg", "png", "webp", "gif", "bmp"},
			EnableDeepScan: true,
		},
		Blobs: BlobConfig{
			BasePath:     "/api/blobs",
			MaxLiveBytes: 256 * 1024 * 1024,
		},
		Archive: ArchiveConfig{
			Driver:       "sqlite",
			TTL:          7 * 24 * time.Hour,
			Cleanup:      10 * time.Minute,
			HistoryLimit: 20,
		},
		Feedback: FeedbackConfig{
			UploadsDir: "uploads",
			Labels:     append([]string(nil), DefaultLabels...),
		},
		Database: DatabaseConfig{
			DSN: "data/sortvision.db",
		},
		Observability: ObservabilityConfig{
			Enabled: false,
		},
	}
}
