package cachestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gedmap/internal/model"
)

// SQLiteBackend stores the cache in a geo_cache table using modernc.org/sqlite.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn, configures WAL mode and creates
// the geo_cache table.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteBackend{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geo_cache (
	key          TEXT PRIMARY KEY,
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	source       TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	county       TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT '',
	postcode     TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	country_code TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL DEFAULT ''
);
`

const sqliteUpsert = `INSERT INTO geo_cache
	(key, latitude, longitude, source, display_name, city, county, state, postcode, country, country_code, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	source = excluded.source,
	display_name = excluded.display_name,
	city = excluded.city,
	county = excluded.county,
	state = excluded.state,
	postcode = excluded.postcode,
	country = excluded.country,
	country_code = excluded.country_code,
	updated_at = excluded.updated_at`

// Load reads every row of geo_cache.
func (b *SQLiteBackend) Load(ctx context.Context) ([]model.CacheEntry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, latitude, longitude, source,
		display_name, city, county, state, postcode, country, country_code, updated_at
		FROM geo_cache ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query geo_cache")
	}
	defer rows.Close() //nolint:errcheck

	var entries []model.CacheEntry
	for rows.Next() {
		var (
			e       model.CacheEntry
			source  string
			updated string
		)
		if err := rows.Scan(&e.Key, &e.Latitude, &e.Longitude, &source,
			&e.Address.DisplayName, &e.Address.City, &e.Address.County, &e.Address.State,
			&e.Address.Postcode, &e.Address.Country, &e.Address.CountryCode, &updated); err != nil {
			return nil, &CorruptError{Location: "sqlite geo_cache", Err: err}
		}
		e.Source = model.ParseSource(source)
		e.UpdatedAt = parseTimestamp(updated)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate geo_cache")
}

// Save upserts entries in a single transaction.
func (b *SQLiteBackend) Save(ctx context.Context, entries []model.CacheEntry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, entryArgs(e)...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert %q", e.Key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Put upserts one entry.
func (b *SQLiteBackend) Put(ctx context.Context, e model.CacheEntry) error {
	_, err := b.db.ExecContext(ctx, sqliteUpsert, entryArgs(e)...)
	return eris.Wrapf(err, "sqlite: upsert %q", e.Key)
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func entryArgs(e model.CacheEntry) []any {
	updated := ""
	if !e.UpdatedAt.IsZero() {
		updated = e.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		e.Key, e.Latitude, e.Longitude, string(e.Source),
		e.Address.DisplayName, e.Address.City, e.Address.County, e.Address.State,
		e.Address.Postcode, e.Address.Country, e.Address.CountryCode, updated,
	}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
