// Package service orchestrates the store, ranking engine and read cache
// behind the interfaces the HTTP API consumes.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/frostline/scoreboard/internal/adapters/cache"
	"github.com/frostline/scoreboard/internal/adapters/repository"
	"github.com/frostline/scoreboard/internal/domain/model"
	"github.com/frostline/scoreboard/internal/domain/ranking"
	"github.com/frostline/scoreboard/pkg/logger"
	"github.com/frostline/scoreboard/pkg/metrics"
)

// topLimit is the per-category depth of the default leaderboard view.
const topLimit = 10

// Service implements the API dependencies for the scoreboard.
type Service struct {
	mu sync.RWMutex

	store repository.Store
	cache *cache.Cache

	maxScores       int
	duplicateWindow time.Duration
	clock           func() time.Time

	started   bool
	startedAt time.Time

	log logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the durable score store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithCache sets the read cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithMaxScores caps retained records per time category.
func WithMaxScores(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxScores = n
		}
	}
}

// WithDuplicateWindow sets the double-submission guard window.
func WithDuplicateWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.duplicateWindow = d
		}
	}
}

// WithClock injects a time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		maxScores:       50,
		duplicateWindow: 5 * time.Second,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.New()
	}
	return s
}

// Start initializes the store and begins watching it for external writes.
// The watcher stops when ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.log == nil {
		s.log = logger.Get()
	}

	if err := s.store.Initialize(ctx); err != nil {
		return err
	}
	if err := s.cache.Watch(ctx, s.store.Path(), s.log); err != nil {
		// Watching is an optimization; mtime checks on GET still detect
		// external writes.
		s.log.Warn(ctx, "store watcher unavailable", logger.Error(err))
	}

	s.started = true
	s.startedAt = s.clock()
	s.log.Info(ctx, "scoreboard service started",
		logger.String("store", s.store.Path()),
		logger.Int("maxScores", s.maxScores),
	)
	return nil
}

// Stop marks the service stopped. The watcher goroutine exits with the
// context passed to Start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.log.Info(context.Background(), "scoreboard service stopped")
}

// Scores returns the cached view for the requested shape, rebuilding it when
// the slot is empty or the store file changed on disk.
func (s *Service) Scores(ctx context.Context, all bool) (cache.Entry, error) {
	s.cache.RefreshFromDisk(s.store.Path())

	slot := cache.SlotTop
	if all {
		slot = cache.SlotAll
	}
	if e, ok := s.cache.Get(slot); ok {
		return e, nil
	}

	// Capture the generation before reading: a write landing between the
	// read and the Put advances it and the stale rebuild is discarded.
	gen := s.cache.Generation()
	records := s.store.Read(ctx)
	var view []model.ScoreRecord
	if all {
		view = ranking.All(records)
	} else {
		view = ranking.TopPerCategory(records, topLimit)
	}

	e, err := cache.BuildEntry(view, s.clock())
	if err != nil {
		return cache.Entry{}, err
	}
	s.cache.Put(slot, e, gen)
	s.updateStoreGauges(records)
	return e, nil
}

// Submit appends a validated submission under the store lock, prunes to the
// per-category cap, invalidates the cache and returns the fresh top view so
// clients can render it without a second round trip.
func (s *Service) Submit(ctx context.Context, sub model.Submission) ([]model.ScoreRecord, error) {
	var top []model.ScoreRecord

	err := s.store.WithLock(ctx, func() error {
		records := s.store.Read(ctx)
		now := s.clock().UnixMilli()

		window := s.duplicateWindow.Milliseconds()
		for _, r := range records {
			if r.Name == sub.Name && r.Score == sub.Score && now-r.Timestamp <= window {
				return ErrDuplicate
			}
		}

		records = append(records, model.ScoreRecord{
			Name:      sub.Name,
			Score:     sub.Score,
			Time:      sub.Time,
			Timestamp: now,
		})
		pruned := ranking.TopPerCategory(records, s.maxScores)
		if err := s.store.Write(ctx, pruned); err != nil {
			return err
		}
		top = ranking.TopPerCategory(pruned, topLimit)
		s.updateStoreGauges(pruned)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.ObserveWrite(s.store.Path())
	metrics.RecordSubmission()
	s.log.Info(ctx, "score recorded",
		logger.String("name", sub.Name),
		logger.Int("score", sub.Score),
	)
	return top, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	started := s.started
	startedAt := s.startedAt
	s.mu.RUnlock()

	stats := map[string]any{
		"started":   started,
		"maxScores": s.maxScores,
		"store":     s.store.Path(),
	}
	if started {
		records := s.store.Read(context.Background())
		perCategory := make(map[string]int)
		for _, r := range records {
			perCategory[r.Category()]++
		}
		stats["totalRecords"] = len(records)
		stats["recordsPerCategory"] = perCategory
		stats["uptimeSeconds"] = int(s.clock().Sub(startedAt).Seconds())
	}
	return stats
}

func (s *Service) updateStoreGauges(records []model.ScoreRecord) {
	perCategory := make(map[string]int)
	for _, r := range records {
		perCategory[r.Category()]++
	}
	// Reset first so categories pruned away do not linger as phantom gauges.
	metrics.ResetStoreRecords()
	for category, count := range perCategory {
		metrics.UpdateStoreRecords(category, count)
	}
}
