package cachestore

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Drivers accepted by NewBackend.
const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and locates a backend.
type Config struct {
	Driver      string
	Path        string
	DatabaseURL string
}

// NewBackend opens the backend named by cfg.Driver. An empty driver means CSV.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverCSV:
		return NewCSV(cfg.Path), nil
	case DriverSQLite:
		path := cfg.Path
		if path == "" || strings.HasSuffix(path, ".csv") {
			path = "geo_cache.db"
		}
		return NewSQLite(ctx, path)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("cachestore: postgres driver requires cache.database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("cachestore: unknown driver %q", cfg.Driver)
	}
}
