// Package config collects the daemon-level configuration cmd/kvsd needs: a
// connection-pool Config (content/pgstore.Config) plus the KVS-specific
// knobs (max_lastuse_age, link follow limit, commit-merge, rank) and the
// backing content-store selection.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/cerc-io/kvs/content"
	"github.com/cerc-io/kvs/content/pgstore"
	"github.com/cerc-io/kvs/lookup"
	"github.com/cerc-io/kvs/service"
)

// Backend names which content.Store implementation a Config builds.
type Backend string

const (
	// BackendMemory uses content.MemStore (the default; no external
	// dependency, matches most of the core's own test suite).
	BackendMemory Backend = "memory"
	// BackendPostgres uses content/pgstore.Store.
	BackendPostgres Backend = "postgres"
)

// PostgresDriver names which pgstore.Driver implementation to build.
type PostgresDriver string

const (
	DriverPGX  PostgresDriver = "pgx"
	DriverSQLX PostgresDriver = "sqlx"
)

// Config is the full daemon configuration: process rank, heartbeat
// cadence, the service loop's module options and constants, and the
// content-store backend selection.
type Config struct {
	Rank              int
	HeartbeatInterval time.Duration

	MaxLastUseAge   int64
	LinkFollowLimit int
	CommitMerge     bool

	Backend          Backend
	MemCacheCapacity int

	Postgres          pgstore.Config
	PostgresDriver    PostgresDriver
	ContentCacheBytes int

	LogLevel string
}

// Default returns the configuration a bare `cmd/kvsd` starts from before
// flags are applied.
func Default() Config {
	return Config{
		Rank:              0,
		HeartbeatInterval: time.Second,
		MaxLastUseAge:     service.DefaultMaxLastUseAge,
		LinkFollowLimit:   lookup.DefaultLinkFollowLimit,
		CommitMerge:       false,
		Backend:           BackendMemory,
		MemCacheCapacity:  4096,
		PostgresDriver:    DriverPGX,
		ContentCacheBytes: pgstore.DefaultCacheBytes,
		LogLevel:          "info",
	}
}

// ServiceConfig projects the service-loop-relevant fields into a
// service.Config.
func (c Config) ServiceConfig() service.Config {
	return service.Config{
		Rank:            c.Rank,
		MaxLastUseAge:   c.MaxLastUseAge,
		LinkFollowLimit: c.LinkFollowLimit,
		CommitMerge:     c.CommitMerge,
	}
}

// NewContentStore builds the content.Store named by c.Backend.
func (c Config) NewContentStore(ctx context.Context) (content.Store, error) {
	switch c.Backend {
	case BackendPostgres:
		return c.newPostgresStore(ctx)
	case BackendMemory, "":
		return content.NewMemStore(c.MemCacheCapacity), nil
	default:
		return nil, fmt.Errorf("config: unknown content-store backend %q", c.Backend)
	}
}

func (c Config) newPostgresStore(ctx context.Context) (content.Store, error) {
	var driver pgstore.Driver
	switch c.PostgresDriver {
	case DriverSQLX:
		d, err := pgstore.NewSQLXDriver(ctx, c.Postgres)
		if err != nil {
			return nil, err
		}
		driver = d
	case DriverPGX, "":
		d, err := pgstore.NewPGXDriver(ctx, c.Postgres)
		if err != nil {
			return nil, err
		}
		driver = d
	default:
		return nil, fmt.Errorf("config: unknown postgres driver %q", c.PostgresDriver)
	}
	return pgstore.NewStore(driver, c.ContentCacheBytes), nil
}
