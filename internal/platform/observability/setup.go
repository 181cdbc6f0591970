package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config toggles span and metric emission.
type Config struct {
	Enabled bool
}

// ShutdownFunc tears down whatever Setup installed.
type ShutdownFunc func(context.Context) error

var (
	stateMu sync.RWMutex
	obsLog  *slog.Logger
	obsCfg  Config
)

func currentLogger() (*slog.Logger, Config) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return obsLog, obsCfg
}

// Setup installs the logger used for spans and metrics. Passing a nil logger
// keeps counters but suppresses log output.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	stateMu.Lock()
	obsLog = logger
	obsCfg = cfg
	stateMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY] spans and metrics enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY] disabled")
		}
	}

	return func(context.Context) error {
		stateMu.Lock()
		obsLog = nil
		obsCfg = Config{}
		stateMu.Unlock()
		return nil
	}, nil
}
