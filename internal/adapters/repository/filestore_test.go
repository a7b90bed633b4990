package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/frostline/scoreboard/internal/adapters/repository"
	"github.com/frostline/scoreboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func intPtr(v int) *int { return &v }

func TestFileStoreInitialize(t *testing.T) {
	Convey("Given a store path in a fresh directory", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "scores.json")
		store := repository.NewFileStore(path)
		ctx := context.Background()

		Convey("When initializing", func() {
			So(store.Initialize(ctx), ShouldBeNil)

			Convey("Then the file exists and carries the seed records", func() {
				records := store.Read(ctx)
				So(records, ShouldHaveLength, 3)
			})

			Convey("And initializing again is a no-op", func() {
				before := store.Read(ctx)
				So(store.Initialize(ctx), ShouldBeNil)
				So(store.Read(ctx), ShouldResemble, before)
			})
		})
	})

	Convey("Given an already existing store file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "scores.json")
		So(os.WriteFile(path, []byte("[]"), 0o644), ShouldBeNil)
		store := repository.NewFileStore(path)

		Convey("When initializing", func() {
			So(store.Initialize(context.Background()), ShouldBeNil)

			Convey("Then the existing content is preserved", func() {
				So(store.Read(context.Background()), ShouldBeEmpty)
			})
		})
	})
}

func TestFileStoreReadDegradesGracefully(t *testing.T) {
	Convey("Given a store", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "scores.json")
		store := repository.NewFileStore(path)
		ctx := context.Background()

		Convey("When the file is missing", func() {
			So(store.Read(ctx), ShouldBeEmpty)
		})

		Convey("When the file is empty", func() {
			So(os.WriteFile(path, nil, 0o644), ShouldBeNil)
			So(store.Read(ctx), ShouldBeEmpty)
		})

		Convey("When the file holds invalid JSON", func() {
			So(os.WriteFile(path, []byte("{not json"), 0o644), ShouldBeNil)
			So(store.Read(ctx), ShouldBeEmpty)
		})
	})
}

func TestFileStoreWriteRoundTrip(t *testing.T) {
	Convey("Given a store and a record list", t, func() {
		dir := t.TempDir()
		store := repository.NewFileStore(filepath.Join(dir, "scores.json"))
		ctx := context.Background()
		records := []model.ScoreRecord{
			{Name: "Tester", Score: 500, Time: intPtr(60), Timestamp: 1700000000000},
			{Name: "NoTime", Score: 100, Timestamp: 1700000000001},
		}

		Convey("When writing and reading back", func() {
			So(store.Write(ctx, records), ShouldBeNil)
			got := store.Read(ctx)

			Convey("Then the list survives intact", func() {
				So(got, ShouldResemble, records)
			})

			Convey("And the optional time field round-trips as absent", func() {
				So(got[1].Time, ShouldBeNil)
				So(got[1].Category(), ShouldEqual, model.UnknownCategory)
			})
		})
	})
}

func TestWithLockSerializesWriters(t *testing.T) {
	Convey("Given concurrent writers appending under the lock", t, func() {
		dir := t.TempDir()
		store := repository.NewFileStore(filepath.Join(dir, "scores.json"),
			repository.WithLockMaxWait(5*time.Second),
		)
		ctx := context.Background()
		So(store.Write(ctx, []model.ScoreRecord{}), ShouldBeNil)

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.WithLock(ctx, func() error {
					records := store.Read(ctx)
					records = append(records, model.ScoreRecord{Name: "w", Score: i, Timestamp: int64(i)})
					return store.Write(ctx, records)
				})
			}(i)
		}
		wg.Wait()

		Convey("Then every writer succeeds and no append is lost", func() {
			for _, err := range errs {
				So(err, ShouldBeNil)
			}
			So(store.Read(ctx), ShouldHaveLength, writers)
		})
	})
}

func TestLockContention(t *testing.T) {
	Convey("Given another store handle holding the lock", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "scores.json")
		holder := repository.NewFileStore(path)
		locked := make(chan struct{})
		released := make(chan struct{})
		holderDone := make(chan error, 1)
		go func() {
			holderDone <- holder.WithLock(context.Background(), func() error {
				close(locked)
				<-released
				return nil
			})
		}()
		<-locked

		Convey("When a second store gives up within a small wait budget", func() {
			store := repository.NewFileStore(path,
				repository.WithLockMaxWait(80*time.Millisecond),
			)
			err := store.WithLock(context.Background(), func() error { return nil })

			Convey("Then acquisition fails with ErrLockTimeout", func() {
				So(errors.Is(err, repository.ErrLockTimeout), ShouldBeTrue)
			})
		})

		Convey("When the waiting context is canceled", func() {
			store := repository.NewFileStore(path,
				repository.WithLockMaxWait(5*time.Second),
			)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := store.WithLock(ctx, func() error { return nil })

			Convey("Then the context error surfaces", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		close(released)
		So(<-holderDone, ShouldBeNil)
	})
}

func TestAbandonedLockDoesNotBlock(t *testing.T) {
	Convey("Given a lock file left behind by a dead holder", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "scores.json")
		lockPath := path + ".lock"
		So(os.WriteFile(lockPath, []byte("held\n"), 0o644), ShouldBeNil)
		old := time.Now().Add(-time.Minute)
		So(os.Chtimes(lockPath, old, old), ShouldBeNil)

		Convey("When acquiring", func() {
			store := repository.NewFileStore(path,
				repository.WithLockMaxWait(time.Second),
				repository.WithLockStaleAge(10*time.Second),
			)
			ran := false
			err := store.WithLock(context.Background(), func() error {
				ran = true
				return nil
			})

			Convey("Then the leftover file does not keep the lock held", func() {
				So(err, ShouldBeNil)
				So(ran, ShouldBeTrue)
			})
		})
	})
}

func TestWithLockReleasesOnError(t *testing.T) {
	Convey("Given a callback that fails", t, func() {
		dir := t.TempDir()
		store := repository.NewFileStore(filepath.Join(dir, "scores.json"))
		boom := errors.New("boom")

		Convey("When running under the lock", func() {
			err := store.WithLock(context.Background(), func() error { return boom })
			So(errors.Is(err, boom), ShouldBeTrue)

			Convey("Then the lock is released for the next caller", func() {
				err := store.WithLock(context.Background(), func() error { return nil })
				So(err, ShouldBeNil)
			})
		})
	})
}
