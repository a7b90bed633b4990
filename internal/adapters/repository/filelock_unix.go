//go:build unix

package repository

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/frostline/scoreboard/pkg/logger"
	"github.com/frostline/scoreboard/pkg/metrics"
)

// heldLock is an exclusive flock on the persistent lock file.
type heldLock struct {
	file *os.File
}

// acquire opens the lock file and polls a non-blocking flock until it is
// granted or the wait budget runs out. The file itself stays in place across
// holders: removing it would let a late arrival flock a different inode and
// proceed alongside the current holder.
func (s *FileStore) acquire(ctx context.Context) (*heldLock, error) {
	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, lockFileMode)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(s.lockMaxWait)
	backoff := initialBackoff
	start := time.Now()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			metrics.RecordLockWait(time.Since(start).Seconds())
			return &heldLock{file: f}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			f.Close()
			return nil, fmt.Errorf("flock: %w", err)
		}
		if time.Now().After(deadline) {
			f.Close()
			metrics.RecordLockTimeout()
			return nil, fmt.Errorf("%w: waited %s", ErrLockTimeout, s.lockMaxWait)
		}
		if backoff, err = sleepBackoff(ctx, backoff); err != nil {
			f.Close()
			return nil, err
		}
	}
}

func (l *heldLock) release(ctx context.Context, log logger.Logger) {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil && log != nil {
		log.Warn(ctx, "releasing store lock failed", logger.Error(err))
	}
	l.file.Close()
}
