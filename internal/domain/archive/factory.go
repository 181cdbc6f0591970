package archive

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"sortvision-gateway/internal/platform/config"
)

// Driver identifiers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Dependencies carries handles some drivers need.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates a store for cfg.Driver (memory when empty).
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB, cfg)
	case DriverRedis:
		return NewRedis(cfg)
	case DriverPostgres:
		return NewPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported archive driver: %s", driver)
	}
}

// ConfigFrom maps the application config section onto a store Config.
func ConfigFrom(cfg config.ArchiveConfig) Config {
	out := Config{
		Driver:  cfg.Driver,
		TTL:     cfg.TTL,
		Cleanup: cfg.Cleanup,
	}
	if cfg.Redis.Addr != "" {
		out.Redis = &RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}
	if cfg.Postgres.DSN != "" {
		out.Postgres = &PostgresConfig{DSN: cfg.Postgres.DSN}
	}
	return out
}
