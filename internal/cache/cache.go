// Package cache remembers which assets are already on disk so repeated runs
// skip work that has been done.
//
// The index maps a cache key to the file that satisfied it. Lookups never
// trust the index alone: the file must still exist and be larger than the
// minimum size, otherwise the entry is evicted and the lookup misses.
// Index persistence is best effort. If the index cannot be read, written or
// locked, the cache keeps working in memory for the current run.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	ioutils "github.com/handiism/deck-media/internal/io"
	"github.com/handiism/deck-media/internal/logging"
)

// Drivers accepted by Options.Driver.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// ErrLocked reports that another process holds the index lock.
var ErrLocked = errors.New("cache index is locked by another process")

// Entry is one index record.
type Entry struct {
	Key        string    `json:"-"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Options configures Open.
type Options struct {
	// Path is the index location. Empty means memory only.
	Path string

	// Driver selects the index format, DriverJSON when empty.
	Driver string

	// MinSize is the size a file must exceed to count as present.
	MinSize int64

	Logger logging.Logger
}

// Stats counts cache activity since Open.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
	Adopted   int64
	Persisted bool
}

// Cache is safe for concurrent use.
type Cache struct {
	minSize int64
	log     logging.Logger
	lock    *flock.Flock

	mu      sync.RWMutex
	entries map[string]Entry
	store   store // nil when running memory only

	hits, misses, evictions, adopted atomic.Int64
}

type store interface {
	Load() (map[string]Entry, error)
	Put(e Entry, all map[string]Entry) error
	Delete(key string, all map[string]Entry) error
	Clear() error
	Close() error
}

// Open loads the index described by opts. It never fails: every problem
// with the index is logged and the cache falls back to memory only.
func Open(opts Options) *Cache {
	c := &Cache{
		minSize: opts.MinSize,
		log:     opts.Logger.With(logging.String("component", "cache")),
		entries: make(map[string]Entry),
	}
	if opts.Path == "" {
		return c
	}

	if err := c.acquire(opts.Path); err != nil {
		c.log.Warn("cache.lock_failed", logging.Err(err), logging.String("path", opts.Path))
		// Read what is there but leave it to the other process to write.
		if st, err := openStore(opts); err == nil {
			if entries, err := st.Load(); err == nil {
				c.entries = entries
			}
			st.Close()
		}
		return c
	}

	st, err := openStore(opts)
	if err != nil {
		c.log.Warn("cache.open_failed", logging.Err(err), logging.String("path", opts.Path))
		c.release()
		return c
	}
	c.store = st

	entries, err := st.Load()
	if err != nil {
		c.log.Warn("cache.load_failed", logging.Err(err), logging.String("path", opts.Path))
		return c
	}
	c.entries = entries
	c.log.Debug("cache.loaded", logging.Int("entries", len(entries)), logging.String("path", opts.Path))
	return c
}

func openStore(opts Options) (store, error) {
	switch opts.Driver {
	case "", DriverJSON:
		return newJSONStore(opts.Path), nil
	case DriverSQLite:
		return openSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}
}

func (c *Cache) acquire(path string) error {
	if err := ioutils.EnsureDir(dirOf(path)); err != nil {
		return err
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	c.lock = lock
	return nil
}

func (c *Cache) release() {
	if c.lock == nil {
		return
	}
	if err := c.lock.Unlock(); err != nil {
		c.log.Warn("cache.unlock_failed", logging.Err(err))
	}
	c.lock = nil
}

// Lookup returns the path recorded for key if that file is still valid.
// A stale entry is evicted and reported as a miss.
func (c *Cache) Lookup(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return "", false
	}
	if !c.valid(entry.Path) {
		if c.evict(key, entry, true) {
			c.misses.Add(1)
			return "", false
		}
		// Replaced by a concurrent Record.
		return c.Lookup(key)
	}
	c.hits.Add(1)
	return entry.Path, true
}

// Record stores key -> path. The file must already exist and exceed the
// minimum size.
func (c *Cache) Record(key, path string) error {
	size, ok := ioutils.FileSize(path)
	if !ok {
		return fmt.Errorf("record %s: %s does not exist", key, path)
	}
	if size <= c.minSize {
		return fmt.Errorf("record %s: %s is %d bytes, need more than %d", key, path, size, c.minSize)
	}

	entry := Entry{Key: key, Path: path, Size: size, RecordedAt: time.Now().UTC()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	c.persist("put", func(st store) error { return st.Put(entry, c.entries) })
	return nil
}

// Adopt records a file already sitting at path when the index has no entry
// for key, which happens when a previous run stopped between writing a file
// and recording it.
func (c *Cache) Adopt(key, path string) bool {
	if !c.valid(path) {
		return false
	}
	if err := c.Record(key, path); err != nil {
		return false
	}
	c.adopted.Add(1)
	c.log.Debug("cache.adopted", logging.String("key", key), logging.String("path", path))
	return true
}

// Evict removes key from the index. The file itself is left alone.
func (c *Cache) Evict(key string) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.evict(key, entry, false)
	}
}

// evict removes key if its entry is still the one the caller saw. With
// stale set, the file is re-checked under the lock and a valid file keeps
// its entry. It reports whether key is now absent.
func (c *Cache) evict(key string, seen Entry, stale bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.entries[key]
	if !ok {
		return true
	}
	if current.Path != seen.Path || !current.RecordedAt.Equal(seen.RecordedAt) {
		return false
	}
	if stale && c.valid(current.Path) {
		return false
	}
	delete(c.entries, key)
	c.evictions.Add(1)
	c.log.Debug("cache.evicted", logging.String("key", key), logging.String("path", current.Path))
	c.persist("delete", func(st store) error { return st.Delete(key, c.entries) })
	return true
}

// Verify re-checks every entry and evicts the stale ones.
func (c *Cache) Verify() (kept, evicted int) {
	for _, e := range c.Entries() {
		if c.valid(e.Path) || !c.evict(e.Key, e, true) {
			kept++
			continue
		}
		evicted++
	}
	return kept, evicted
}

// Entries returns every entry sorted by key.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for k, e := range c.entries {
		e.Key = k
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
	if c.store == nil {
		return nil
	}
	return c.store.Clear()
}

// Count returns the number of entries.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns activity counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	persisted := c.store != nil
	c.mu.RUnlock()

	return Stats{
		Entries:   n,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Adopted:   c.adopted.Load(),
		Persisted: persisted,
	}
}

// Close releases the index and its lock.
func (c *Cache) Close() error {
	c.mu.Lock()
	var err error
	if c.store != nil {
		err = c.store.Close()
		c.store = nil
	}
	c.mu.Unlock()

	c.release()
	return err
}

func (c *Cache) valid(path string) bool {
	size, ok := ioutils.FileSize(path)
	return ok && size > c.minSize
}

// persist runs op against the store. The first failure switches the cache
// to memory only. Callers hold c.mu.
func (c *Cache) persist(what string, op func(store) error) {
	if c.store == nil {
		return
	}
	if err := op(c.store); err != nil {
		c.log.Warn("cache.persist_failed", logging.String("op", what), logging.Err(err))
		c.store.Close()
		c.store = nil
	}
}
