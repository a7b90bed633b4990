// Package cache memoizes ranked leaderboard views between writes.
//
// Two slots cover the two query shapes (all records, top-10-per-category).
// Each entry carries the serialized payload together with the ETag and
// Last-Modified derived from it, so a response's validators always match the
// body it ships. Both slots invalidate together on any write through this
// process and whenever the store file changes on disk underneath us.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/frostline/scoreboard/internal/domain/model"
	"github.com/frostline/scoreboard/pkg/logger"
	"github.com/frostline/scoreboard/pkg/metrics"
)

// Slot identifies a cached query shape.
type Slot string

// Cache slots.
const (
	SlotAll Slot = "all"
	SlotTop Slot = "top10"
)

// Entry is an immutable cached view.
type Entry struct {
	Payload      []byte
	ETag         string
	LastModified time.Time
}

// StatFunc abstracts os.Stat so tests can simulate external file changes.
type StatFunc func(path string) (fs.FileInfo, error)

// Cache holds the memoized views and the last observed store-file mtime.
// gen counts invalidations so a rebuild racing a write cannot re-install a
// view read before that write.
type Cache struct {
	mu         sync.Mutex
	entries    map[Slot]Entry
	gen        uint64
	lastMtime  time.Time
	mtimeKnown bool

	clock func() time.Time
	stat  StatFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects a time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithStat injects a file-stat provider.
func WithStat(stat StatFunc) Option {
	return func(c *Cache) {
		if stat != nil {
			c.stat = stat
		}
	}
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Slot]Entry),
		clock:   time.Now,
		stat:    os.Stat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached entry for slot, if built.
func (c *Cache) Get(slot Slot) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[slot]
	if ok {
		metrics.RecordCacheHit(string(slot))
	} else {
		metrics.RecordCacheMiss(string(slot))
	}
	return e, ok
}

// Generation returns the current invalidation generation. Capture it before
// reading the store and hand it back to Put.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Put stores a freshly built entry for slot. The entry is discarded when an
// invalidation has advanced the generation past gen, because the underlying
// data changed while the entry was being built.
func (c *Cache) Put(slot Slot, e Entry, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries[slot] = e
}

// Invalidate drops both slots. Cause labels the invalidation metric
// (write, mtime, watch).
func (c *Cache) Invalidate(cause string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(cause)
}

func (c *Cache) invalidateLocked(cause string) {
	if len(c.entries) > 0 {
		metrics.RecordCacheInvalidation(cause)
	}
	c.entries = make(map[Slot]Entry)
	c.gen++
}

// RefreshFromDisk compares the store file's mtime against the last observed
// value and invalidates both slots when it moved. This catches writers that
// bypass this process (manual edits, other instances sharing the file).
func (c *Cache) RefreshFromDisk(path string) {
	info, err := c.stat(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// Missing file reads as empty; drop anything stale.
		if c.mtimeKnown {
			c.mtimeKnown = false
			c.invalidateLocked("mtime")
		}
		return
	}
	mtime := info.ModTime()
	if c.mtimeKnown && mtime.Equal(c.lastMtime) {
		return
	}
	// Unknown previous mtime counts as changed: a file appearing after an
	// absence must not leave entries built during the absence in place.
	c.invalidateLocked("mtime")
	c.lastMtime = mtime
	c.mtimeKnown = true
}

// ObserveWrite records the post-write mtime and invalidates both slots.
// Call after every successful write through this process.
func (c *Cache) ObserveWrite(path string) {
	info, err := c.stat(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked("write")
	if err == nil {
		c.lastMtime = info.ModTime()
		c.mtimeKnown = true
	} else {
		c.mtimeKnown = false
	}
}

// Watch invalidates eagerly when the store file is rewritten by another
// process. Best effort: the per-read mtime check remains the backstop, so a
// failed watcher only costs freshness, never correctness.
func (c *Cache) Watch(ctx context.Context, path string, log logger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: whole-file rewrites replace the inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					c.RefreshFromDisk(path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if log != nil {
					log.Warn(ctx, "store watcher error", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// BuildEntry serializes records and derives the entry's validators from the
// payload: a content-hash ETag and the newest record timestamp as
// Last-Modified (now when the result set is empty).
func BuildEntry(records []model.ScoreRecord, now time.Time) (Entry, error) {
	if records == nil {
		records = []model.ScoreRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal view: %w", err)
	}

	lastMod := now
	if len(records) > 0 {
		var maxTS int64
		for _, r := range records {
			if r.Timestamp > maxTS {
				maxTS = r.Timestamp
			}
		}
		lastMod = time.UnixMilli(maxTS)
	}

	return Entry{
		Payload:      payload,
		ETag:         fmt.Sprintf("%q", fmt.Sprintf("%016x", xxhash.Sum64(payload))),
		LastModified: lastMod,
	}, nil
}
