// Package cachestore persists resolved place coordinates across runs.
//
// A Cache holds every entry in memory for the duration of a run and writes
// through a Backend: a CSV file, a SQLite database or a Postgres table.
package cachestore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gedmap/internal/model"
)

// Backend loads and stores the full set of cache entries.
type Backend interface {
	// Load returns every persisted entry. A backend that has never been
	// written returns no entries and no error.
	Load(ctx context.Context) ([]model.CacheEntry, error)
	// Save persists entries, which are sorted by key.
	Save(ctx context.Context, entries []model.CacheEntry) error
	Close() error
}

// EntryWriter is implemented by backends that can persist a single entry
// without rewriting the rest. The Cache uses it for incremental writes.
type EntryWriter interface {
	Put(ctx context.Context, entry model.CacheEntry) error
}

// CorruptError reports a persisted cache that could not be decoded. Open
// treats it as an empty cache.
type CorruptError struct {
	Location string
	Err      error
}

func (e *CorruptError) Error() string {
	return "cachestore: corrupt cache " + e.Location + ": " + e.Err.Error()
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Option configures a Cache.
type Option func(*Cache)

// WithIncremental writes every upsert through to the backend immediately
// when it implements EntryWriter; otherwise the whole cache is saved.
func WithIncremental(on bool) Option {
	return func(c *Cache) { c.incremental = on }
}

// WithReadOnly opens the cache for inspection. Upsert is refused and Close
// never writes the backend, even when the persisted cache was unreadable.
func WithReadOnly() Option {
	return func(c *Cache) { c.readOnly = true }
}

// WithClock overrides the timestamp source for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is an in-memory key to entry map over a Backend. It is not safe for
// concurrent use.
type Cache struct {
	backend     Backend
	entries     map[string]model.CacheEntry
	keys        []string
	dirty       bool
	incremental bool
	readOnly    bool
	now         func() time.Time
	closed      bool
}

// Open loads the backend into a new Cache. A corrupt persisted cache yields
// an empty cache that is rewritten on the next flush.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Cache, error) {
	c := &Cache{
		backend: backend,
		entries: make(map[string]model.CacheEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}

	entries, err := backend.Load(ctx)
	var corrupt *CorruptError
	switch {
	case errors.As(err, &corrupt):
		zap.L().Warn("cachestore: persisted cache unreadable, starting empty",
			zap.String("location", corrupt.Location),
			zap.Error(corrupt.Err),
		)
		c.dirty = true
	case err != nil:
		return nil, eris.Wrap(err, "cachestore: load")
	}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		c.entries[e.Key] = e
	}
	zap.L().Debug("cachestore: loaded", zap.Int("entries", len(c.entries)))
	return c, nil
}

// Use opens a cache, runs fn and closes the cache on every exit path,
// including a panic in fn. The close error is returned when fn succeeds.
func Use(ctx context.Context, backend Backend, fn func(*Cache) error, opts ...Option) (err error) {
	c, err := Open(ctx, backend, opts...)
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer func() {
		if cerr := c.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

// Get returns the entry stored under key.
func (c *Cache) Get(key string) (model.CacheEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Keys returns every key in ascending order. The slice is shared; callers
// must not modify it.
func (c *Cache) Keys() []string {
	if c.keys == nil {
		c.keys = make([]string, 0, len(c.entries))
		for k := range c.entries {
			c.keys = append(c.keys, k)
		}
		sort.Strings(c.keys)
	}
	return c.keys
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.entries) }

// Entries returns a key-sorted snapshot of the cache.
func (c *Cache) Entries() []model.CacheEntry {
	keys := c.Keys()
	out := make([]model.CacheEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.entries[k])
	}
	return out
}

// Upsert stores entry under entry.Key. Coordinate and source always take the
// new values; the existing canonical address is kept unless the new one is
// at least as rich.
func (c *Cache) Upsert(ctx context.Context, entry model.CacheEntry) error {
	if entry.Key == "" {
		return eris.New("cachestore: upsert with empty key")
	}
	if c.readOnly {
		return eris.Errorf("cachestore: upsert %q into read-only cache", entry.Key)
	}
	if old, ok := c.entries[entry.Key]; ok {
		if entry.Address.Richness() < old.Address.Richness() {
			entry.Address = old.Address
		}
	} else {
		c.keys = nil
	}
	entry.UpdatedAt = c.now()
	c.entries[entry.Key] = entry
	c.dirty = true

	if !c.incremental {
		return nil
	}
	if w, ok := c.backend.(EntryWriter); ok {
		if err := w.Put(ctx, entry); err != nil {
			return eris.Wrapf(err, "cachestore: put %q", entry.Key)
		}
		return nil
	}
	return c.Flush(ctx)
}

// Flush saves the cache if anything changed since the last flush.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.dirty || c.readOnly {
		return nil
	}
	if err := c.backend.Save(ctx, c.Entries()); err != nil {
		return eris.Wrap(err, "cachestore: save")
	}
	c.dirty = false
	return nil
}

// Close flushes with a context that ignores ctx's cancellation, so an
// interrupted run still persists what it resolved, then closes the backend.
func (c *Cache) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	ferr := c.Flush(context.WithoutCancel(ctx))
	berr := c.backend.Close()
	if ferr != nil {
		return ferr
	}
	return eris.Wrap(berr, "cachestore: close backend")
}

// Stats summarizes the cache by entry source.
type Stats struct {
	Entries  int
	BySource map[model.Source]int
	Oldest   time.Time
	Newest   time.Time
}

// Stats computes a summary of the current entries.
func (c *Cache) Stats() Stats {
	s := Stats{Entries: len(c.entries), BySource: make(map[model.Source]int)}
	for _, e := range c.entries {
		s.BySource[e.Source]++
		if e.UpdatedAt.IsZero() {
			continue
		}
		if s.Oldest.IsZero() || e.UpdatedAt.Before(s.Oldest) {
			s.Oldest = e.UpdatedAt
		}
		if e.UpdatedAt.After(s.Newest) {
			s.Newest = e.UpdatedAt
		}
	}
	return s
}
