// Package repository defines the durable score store interface and errors.
package repository

import (
	"context"

	"github.com/frostline/scoreboard/internal/domain/model"
)

// Store provides durable read/write access to the score list.
type Store interface {
	// Initialize ensures the backing directory and file exist, seeding a
	// missing file with placeholder records. Safe to call on every start.
	Initialize(ctx context.Context) error

	// Read returns the full record list. Missing files, empty content and
	// parse failures degrade to an empty list; Read never fails the caller.
	Read(ctx context.Context) []model.ScoreRecord

	// Write serializes the full list, replacing the file. Callers must hold
	// the store lock.
	Write(ctx context.Context, records []model.ScoreRecord) error

	// WithLock runs fn while holding the exclusive cross-process lock. The
	// lock is released on every exit path. Returns ErrLockTimeout when the
	// retry budget is exhausted.
	WithLock(ctx context.Context, fn func() error) error

	// Path returns the location of the backing file, for mtime checks.
	Path() string
}
