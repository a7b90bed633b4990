package repository

import (
	"context"
	"path/filepath"
	"time"
)

const (
	lockFileMode   = 0o644
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 250 * time.Millisecond
)

// WithLock runs fn while holding the exclusive cross-process advisory lock.
//
// On Unix the lock is a kernel flock on a persistent lock file that is never
// removed, so two holders can never end up flocking different inodes; the
// kernel drops the lock when its holder exits, crashed or not. Elsewhere the
// lock is the file's existence, created with O_EXCL, and a file older than
// lockStaleAge is reclaimed as abandoned. Acquisition retries with
// increasing backoff until lockMaxWait elapses, then fails with
// ErrLockTimeout.
func (s *FileStore) WithLock(ctx context.Context, fn func() error) error {
	lock, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer lock.release(ctx, s.log)

	return fn()
}

func (s *FileStore) lockPath() string {
	return filepath.Join(s.lockDir, filepath.Base(s.path)+".lock")
}

// sleepBackoff waits out one backoff step unless ctx is canceled first and
// returns the next step, doubling up to maxBackoff.
func sleepBackoff(ctx context.Context, backoff time.Duration) (time.Duration, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(backoff):
	}
	backoff *= 2
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff, nil
}
