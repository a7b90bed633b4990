//go:build !unix

package repository

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/frostline/scoreboard/pkg/logger"
	"github.com/frostline/scoreboard/pkg/metrics"
)

// heldLock is an exclusively created lock file; existence means held.
type heldLock struct {
	file *os.File
	path string
}

// acquire creates the lock file with O_EXCL and retries with backoff while
// it exists. Without flock the only crash recovery is age: a lock file older
// than lockStaleAge is assumed abandoned (holder died before release) and is
// reclaimed.
func (s *FileStore) acquire(ctx context.Context) (*heldLock, error) {
	path := s.lockPath()
	deadline := time.Now().Add(s.lockMaxWait)
	backoff := initialBackoff
	start := time.Now()

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
		if err == nil {
			// Holder pid and acquisition time, for stale-lock diagnostics.
			fmt.Fprintf(f, "%d %d\n", os.Getpid(), time.Now().UnixMilli())
			metrics.RecordLockWait(time.Since(start).Seconds())
			return &heldLock{file: f, path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("open lock file: %w", err)
		}

		if age, ok := lockAge(path); ok && age > s.lockStaleAge {
			if s.log != nil {
				s.log.Warn(ctx, "breaking stale store lock",
					logger.String("path", path),
					logger.String("age", age.String()))
			}
			metrics.RecordStaleLockBroken()
			os.Remove(path)
			continue
		}

		if time.Now().After(deadline) {
			metrics.RecordLockTimeout()
			return nil, fmt.Errorf("%w: waited %s", ErrLockTimeout, s.lockMaxWait)
		}
		if backoff, err = sleepBackoff(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func (l *heldLock) release(_ context.Context, _ logger.Logger) {
	l.file.Close()
	os.Remove(l.path)
}

// lockAge reports how long ago the lock file was last written.
func lockAge(path string) (time.Duration, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}
