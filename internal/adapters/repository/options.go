package repository

import (
	"time"

	"github.com/frostline/scoreboard/pkg/logger"
)

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithLockDir places the advisory lock file in dir instead of alongside the
// data file.
func WithLockDir(dir string) Option {
	return func(s *FileStore) {
		if dir != "" {
			s.lockDir = dir
		}
	}
}

// WithLockMaxWait bounds total time spent acquiring the store lock.
func WithLockMaxWait(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.lockMaxWait = d
		}
	}
}

// WithLockStaleAge sets the age past which an abandoned lock is reclaimed.
// Only consulted on platforms without flock, where crash recovery rests on
// the lock file's age.
func WithLockStaleAge(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.lockStaleAge = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(log logger.Logger) Option {
	return func(s *FileStore) {
		s.log = log
	}
}
