package cachestore

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gedmap/internal/model"
)

// DefaultCSVPath is the cache file used when none is configured.
const DefaultCSVPath = "geo_cache.csv"

var csvHeader = []string{
	"key", "latitude", "longitude", "source",
	"display_name", "city", "county", "state", "postcode", "country", "country_code",
	"updated_at",
}

// CSVBackend stores the cache as a CSV file, rewritten atomically on save.
type CSVBackend struct {
	path string
}

// NewCSV returns a backend for the file at path.
func NewCSV(path string) *CSVBackend {
	if path == "" {
		path = DefaultCSVPath
	}
	return &CSVBackend{path: path}
}

// Path returns the backing file path.
func (b *CSVBackend) Path() string { return b.path }

// Load reads the file. A missing file is an empty cache; a file that does
// not parse yields a *CorruptError. Rows with unreadable coordinates are
// logged and skipped.
func (b *CSVBackend) Load(_ context.Context) ([]model.CacheEntry, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cachestore: open %s", b.path)
	}
	defer f.Close() //nolint:errcheck

	entries, err := readCSV(f)
	if err != nil {
		return nil, &CorruptError{Location: b.path, Err: err}
	}
	return entries, nil
}

func readCSV(r io.Reader) ([]model.CacheEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"key", "latitude", "longitude"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("missing column %q", required)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var entries []model.CacheEntry
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		key := field(rec, "key")
		if key == "" {
			continue
		}
		lat, latErr := strconv.ParseFloat(field(rec, "latitude"), 64)
		lon, lonErr := strconv.ParseFloat(field(rec, "longitude"), 64)
		if latErr != nil || lonErr != nil {
			line, _ := reader.FieldPos(0)
			zap.L().Warn("cachestore: skipping unreadable cache row",
				zap.Int("line", line),
				zap.String("key", key),
				zap.NamedError("latitude", latErr),
				zap.NamedError("longitude", lonErr),
			)
			continue
		}
		e := model.CacheEntry{
			Key:       key,
			Latitude:  lat,
			Longitude: lon,
			Source:    model.ParseSource(field(rec, "source")),
			Address: model.AddressParts{
				DisplayName: field(rec, "display_name"),
				City:        field(rec, "city"),
				County:      field(rec, "county"),
				State:       field(rec, "state"),
				Postcode:    field(rec, "postcode"),
				Country:     field(rec, "country"),
				CountryCode: field(rec, "country_code"),
			},
		}
		if ts := field(rec, "updated_at"); ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				e.UpdatedAt = t
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Save writes entries to a temporary file beside the target and renames it
// into place.
func (b *CSVBackend) Save(_ context.Context, entries []model.CacheEntry) error {
	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "cachestore: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if err := WriteCSV(tmp, entries); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "cachestore: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "cachestore: close %s", tmpName)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return eris.Wrapf(err, "cachestore: rename to %s", b.path)
	}
	return nil
}

// WriteCSV encodes entries in the cache file format.
func WriteCSV(w io.Writer, entries []model.CacheEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		updated := ""
		if !e.UpdatedAt.IsZero() {
			updated = e.UpdatedAt.UTC().Format(time.RFC3339)
		}
		rec := []string{
			e.Key,
			strconv.FormatFloat(e.Latitude, 'f', -1, 64),
			strconv.FormatFloat(e.Longitude, 'f', -1, 64),
			string(e.Source),
			e.Address.DisplayName,
			e.Address.City,
			e.Address.County,
			e.Address.State,
			e.Address.Postcode,
			e.Address.Country,
			e.Address.CountryCode,
			updated,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Close is a no-op; the file is only open during Load and Save.
func (b *CSVBackend) Close() error { return nil }
