package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/frostline/scoreboard/internal/domain/model"
	"github.com/frostline/scoreboard/pkg/logger"
	"github.com/frostline/scoreboard/pkg/metrics"
)

const (
	dataFileMode = 0o644
	dataDirMode  = 0o755
)

// FileStore persists the score list as a single JSON array on disk.
// Writes go through a temp file and rename so readers never observe a
// half-written file on filesystems with atomic rename.
type FileStore struct {
	path    string
	lockDir string

	lockMaxWait  time.Duration
	lockStaleAge time.Duration

	log logger.Logger
}

// NewFileStore creates a FileStore for the given data file path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:         path,
		lockDir:      filepath.Dir(path),
		lockMaxWait:  2 * time.Second,
		lockStaleAge: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string { return s.path }

// Initialize ensures the directory and file exist. A missing file is seeded
// with placeholder records so a fresh deployment shows a non-empty board.
func (s *FileStore) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), dataDirMode); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.MkdirAll(s.lockDir, dataDirMode); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat store file: %w", err)
	}
	if err := s.Write(ctx, seedRecords()); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info(ctx, "seeded new score store", logger.String("path", s.path))
	}
	return nil
}

// Read returns all records. Corruption is never fatal: a missing, empty or
// unparseable file yields an empty list and a logged warning.
func (s *FileStore) Read(ctx context.Context) []model.ScoreRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			metrics.RecordStoreReadError()
			if s.log != nil {
				s.log.Warn(ctx, "score store unreadable, treating as empty",
					logger.String("path", s.path), logger.Error(err))
			}
		}
		return []model.ScoreRecord{}
	}
	if len(data) == 0 {
		return []model.ScoreRecord{}
	}
	var records []model.ScoreRecord
	if err := json.Unmarshal(data, &records); err != nil {
		if s.log != nil {
			s.log.Warn(ctx, "score store corrupt, treating as empty",
				logger.String("path", s.path), logger.Error(err))
		}
		metrics.RecordStoreReadError()
		return []model.ScoreRecord{}
	}
	return records
}

// Write replaces the store file with the serialized record list.
func (s *FileStore) Write(ctx context.Context, records []model.ScoreRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "scores-*")
	if err != nil {
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: sync: %w", ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: close: %w", ErrWriteFailed, err)
	}
	if err := os.Chmod(tmpName, dataFileMode); err != nil {
		os.Remove(tmpName)
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: chmod: %w", ErrWriteFailed, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		metrics.RecordStoreWriteError()
		return fmt.Errorf("%w: rename: %w", ErrWriteFailed, err)
	}
	return nil
}

// seedRecords returns the placeholder board for a freshly created store.
func seedRecords() []model.ScoreRecord {
	now := time.Now().UnixMilli()
	sixty := 60
	thirty := 30
	return []model.ScoreRecord{
		{Name: "Rudolph", Score: 120, Time: &sixty, Timestamp: now},
		{Name: "Frosty", Score: 80, Time: &sixty, Timestamp: now},
		{Name: "Elfie", Score: 40, Time: &thirty, Timestamp: now},
	}
}
