package cachestore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gedmap/internal/db"
	"github.com/sells-group/gedmap/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresBackend. pgxmock's
// pool satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresBackend stores the cache in a geo_cache table.
type PostgresBackend struct {
	pool Pool
}

// NewPostgres connects to connString and creates the geo_cache table.
func NewPostgres(ctx context.Context, connString string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	b := NewPostgresWithPool(pool)
	if err := b.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geo_cache (
	key          TEXT PRIMARY KEY,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	source       TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	county       TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT '',
	postcode     TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	country_code TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var geoCacheColumns = []string{
	"key", "latitude", "longitude", "source", "display_name", "city",
	"county", "state", "postcode", "country", "country_code", "updated_at",
}

var geoCacheUpsert = db.UpsertConfig{
	Table:        "geo_cache",
	Columns:      geoCacheColumns,
	ConflictKeys: []string{"key"},
}

const postgresUpsert = `INSERT INTO geo_cache
	(key, latitude, longitude, source, display_name, city, county, state, postcode, country, country_code, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (key) DO UPDATE SET
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	source = EXCLUDED.source,
	display_name = EXCLUDED.display_name,
	city = EXCLUDED.city,
	county = EXCLUDED.county,
	state = EXCLUDED.state,
	postcode = EXCLUDED.postcode,
	country = EXCLUDED.country,
	country_code = EXCLUDED.country_code,
	updated_at = EXCLUDED.updated_at`

// Migrate creates the geo_cache table if it does not exist.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Load reads every row of geo_cache.
func (b *PostgresBackend) Load(ctx context.Context) ([]model.CacheEntry, error) {
	rows, err := b.pool.Query(ctx, `SELECT key, latitude, longitude, source,
		display_name, city, county, state, postcode, country, country_code, updated_at
		FROM geo_cache ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query geo_cache")
	}
	defer rows.Close()

	var entries []model.CacheEntry
	for rows.Next() {
		var (
			e      model.CacheEntry
			source string
		)
		if err := rows.Scan(&e.Key, &e.Latitude, &e.Longitude, &source,
			&e.Address.DisplayName, &e.Address.City, &e.Address.County, &e.Address.State,
			&e.Address.Postcode, &e.Address.Country, &e.Address.CountryCode, &e.UpdatedAt); err != nil {
			return nil, &CorruptError{Location: "postgres geo_cache", Err: err}
		}
		e.Source = model.ParseSource(source)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate geo_cache")
}

// Save upserts entries in one transaction, staging them with COPY.
func (b *PostgresBackend) Save(ctx context.Context, entries []model.CacheEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, pgArgs(e))
	}
	_, err := db.BulkUpsert(ctx, b.pool, geoCacheUpsert, rows)
	return eris.Wrap(err, "postgres: save")
}

// Put upserts one entry.
func (b *PostgresBackend) Put(ctx context.Context, e model.CacheEntry) error {
	_, err := b.pool.Exec(ctx, postgresUpsert, pgArgs(e)...)
	return eris.Wrapf(err, "postgres: upsert %q", e.Key)
}

// Close releases the pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func pgArgs(e model.CacheEntry) []any {
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return []any{
		e.Key, e.Latitude, e.Longitude, string(e.Source),
		e.Address.DisplayName, e.Address.City, e.Address.County, e.Address.State,
		e.Address.Postcode, e.Address.Country, e.Address.CountryCode, updated,
	}
}
