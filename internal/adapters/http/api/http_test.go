package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/frostline/scoreboard/internal/adapters/cache"
	"github.com/frostline/scoreboard/internal/adapters/http/api"
	"github.com/frostline/scoreboard/internal/adapters/repository"
	service "github.com/frostline/scoreboard/internal/app"
	"github.com/frostline/scoreboard/internal/domain/model"
	"github.com/frostline/scoreboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testEnv struct {
	mux  *http.ServeMux
	path string
}

// newTestEnv wires a real service over an empty store in a temp dir.
func newTestEnv(t *testing.T, opts ...api.ServerOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scores.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := repository.NewFileStore(path)
	svc := service.New(
		service.WithStore(store),
		service.WithCache(cache.New()),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if err := svc.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		svc.Stop()
		cancel()
	})

	mux := http.NewServeMux()
	api.NewServer(svc, svc, opts...).Register(ctx, mux)
	return &testEnv{mux: mux, path: path}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeSubmit(t *testing.T, w *httptest.ResponseRecorder) (success bool, scores []model.ScoreRecord) {
	t.Helper()
	var resp struct {
		Success bool                `json:"success"`
		Scores  []model.ScoreRecord `json:"scores"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Success, resp.Scores
}

func TestPostScores(t *testing.T) {
	Convey("Given a server over an empty store", t, func() {
		env := newTestEnv(t)

		Convey("When posting a valid submission", func() {
			w := env.do(http.MethodPost, "/scores", `{"name":"Tester","score":500,"time":60}`)

			Convey("Then it succeeds and returns the fresh top view", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				success, scores := decodeSubmit(t, w)
				So(success, ShouldBeTrue)
				So(scores, ShouldHaveLength, 1)
				So(scores[0].Name, ShouldEqual, "Tester")
				So(scores[0].Score, ShouldEqual, 500)
				So(*scores[0].Time, ShouldEqual, 60)
			})

			Convey("And a follow-up GET reflects the record", func() {
				g := env.do(http.MethodGet, "/scores", "")
				So(g.Code, ShouldEqual, http.StatusOK)
				So(g.Body.String(), ShouldContainSubstring, `"Tester"`)
			})
		})

		Convey("When required fields are missing", func() {
			So(env.do(http.MethodPost, "/scores", `{"score":5}`).Code, ShouldEqual, http.StatusBadRequest)
			So(env.do(http.MethodPost, "/scores", `{"name":"Tom"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(env.do(http.MethodPost, "/scores", `not json`).Code, ShouldEqual, http.StatusBadRequest)

			Convey("And the error body carries the code and kinded message", func() {
				w := env.do(http.MethodPost, "/scores", `{"score":5}`)
				var resp struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "bad_request")
				So(resp.Message, ShouldContainSubstring, "bad request")
				So(resp.Message, ShouldContainSubstring, "name and score are required")
			})
		})

		Convey("When the score is out of bounds", func() {
			So(env.do(http.MethodPost, "/scores", `{"name":"Tom","score":-1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(env.do(http.MethodPost, "/scores", `{"name":"Tom","score":1000001}`).Code, ShouldEqual, http.StatusBadRequest)
			So(env.do(http.MethodPost, "/scores", `{"name":"Tom","score":500.5}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the score sits exactly on the bounds", func() {
			So(env.do(http.MethodPost, "/scores", `{"name":"Min","score":0}`).Code, ShouldEqual, http.StatusOK)
			So(env.do(http.MethodPost, "/scores", `{"name":"Max","score":1000000}`).Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the name is hostile", func() {
			Convey("Then SQL injection attempts are rejected", func() {
				w := env.do(http.MethodPost, "/scores", `{"name":"Robert'); DROP TABLE","score":10}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then script tags are rejected", func() {
				w := env.do(http.MethodPost, "/scores", `{"name":"<script>alert(1)</script>Tom","score":10}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a name that sanitizes to nothing is rejected", func() {
				w := env.do(http.MethodPost, "/scores", `{"name":"<><>","score":10}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the name merely needs cleanup", func() {
			w := env.do(http.MethodPost, "/scores", `{"name":"  To!m  ","score":10}`)

			Convey("Then the sanitized form is stored", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				_, scores := decodeSubmit(t, w)
				So(scores[0].Name, ShouldEqual, "Tom")
			})
		})

		Convey("When time arrives as a numeric string", func() {
			w := env.do(http.MethodPost, "/scores", `{"name":"Str","score":70,"time":"60"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			w2 := env.do(http.MethodPost, "/scores", `{"name":"Num","score":80,"time":60}`)
			So(w2.Code, ShouldEqual, http.StatusOK)

			Convey("Then both land in the same category", func() {
				_, scores := decodeSubmit(t, w2)
				So(scores, ShouldHaveLength, 2)
				So(*scores[0].Time, ShouldEqual, 60)
				So(*scores[1].Time, ShouldEqual, 60)
			})
		})

		Convey("When time is unparseable", func() {
			w := env.do(http.MethodPost, "/scores", `{"name":"Odd","score":70,"time":"soon"}`)

			Convey("Then it is dropped rather than rejected", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				_, scores := decodeSubmit(t, w)
				So(scores[0].Time, ShouldBeNil)
			})
		})

		Convey("When the same submission arrives twice in quick succession", func() {
			first := env.do(http.MethodPost, "/scores", `{"name":"Tester","score":500}`)
			So(first.Code, ShouldEqual, http.StatusOK)
			second := env.do(http.MethodPost, "/scores", `{"name":"Tester","score":500}`)

			Convey("Then the duplicate gets 429 and only one record is stored", func() {
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				g := env.do(http.MethodGet, "/scores?all=true", "")
				var records []model.ScoreRecord
				So(json.Unmarshal(g.Body.Bytes(), &records), ShouldBeNil)
				So(records, ShouldHaveLength, 1)
			})
		})
	})
}

func TestGetScores(t *testing.T) {
	Convey("Given a server with a stored score", t, func() {
		env := newTestEnv(t)
		So(env.do(http.MethodPost, "/scores", `{"name":"Tester","score":500,"time":60}`).Code, ShouldEqual, http.StatusOK)

		Convey("When fetching the default view", func() {
			w := env.do(http.MethodGet, "/scores", "")

			Convey("Then the response carries validators and cache headers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("ETag"), ShouldStartWith, `"`)
				So(w.Header().Get("Last-Modified"), ShouldNotBeEmpty)
				So(w.Header().Get("Cache-Control"), ShouldEqual, "public, max-age=30, must-revalidate")
			})

			Convey("And two reads without a write share an ETag", func() {
				second := env.do(http.MethodGet, "/scores", "")
				So(second.Header().Get("ETag"), ShouldEqual, w.Header().Get("ETag"))
			})

			Convey("And a write in between changes the ETag", func() {
				So(env.do(http.MethodPost, "/scores", `{"name":"Other","score":900}`).Code, ShouldEqual, http.StatusOK)
				second := env.do(http.MethodGet, "/scores", "")
				So(second.Header().Get("ETag"), ShouldNotEqual, w.Header().Get("ETag"))
			})
		})

		Convey("When revalidating with If-None-Match", func() {
			first := env.do(http.MethodGet, "/scores", "")
			etag := first.Header().Get("ETag")

			req := httptest.NewRequest(http.MethodGet, "/scores", nil)
			req.Header.Set("If-None-Match", etag)
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, req)

			Convey("Then the response is 304 with no body", func() {
				So(w.Code, ShouldEqual, http.StatusNotModified)
				So(w.Body.Len(), ShouldEqual, 0)
			})
		})

		Convey("When revalidating with If-Modified-Since", func() {
			first := env.do(http.MethodGet, "/scores", "")
			lastMod := first.Header().Get("Last-Modified")

			req := httptest.NewRequest(http.MethodGet, "/scores", nil)
			req.Header.Set("If-Modified-Since", lastMod)
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, req)

			Convey("Then the response is 304", func() {
				So(w.Code, ShouldEqual, http.StatusNotModified)
			})
		})

		Convey("When requesting all records", func() {
			w := env.do(http.MethodGet, "/scores?all=true", "")

			Convey("Then the full list comes back", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var records []model.ScoreRecord
				So(json.Unmarshal(w.Body.Bytes(), &records), ShouldBeNil)
				So(records, ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given a corrupt store file", t, func() {
		env := newTestEnv(t)
		So(os.WriteFile(env.path, []byte("{corrupt"), 0o644), ShouldBeNil)

		Convey("When fetching scores", func() {
			w := env.do(http.MethodGet, "/scores?all=true", "")

			Convey("Then corruption degrades to an empty array, not an error", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})
	})

	Convey("Given an external writer bypassing this process", t, func() {
		env := newTestEnv(t)
		first := env.do(http.MethodGet, "/scores", "")
		So(first.Code, ShouldEqual, http.StatusOK)

		records := []model.ScoreRecord{{Name: "Outside", Score: 999, Timestamp: time.Now().UnixMilli()}}
		data, err := json.Marshal(records)
		So(err, ShouldBeNil)
		// Rewrite with a clearly different mtime.
		So(os.WriteFile(env.path, data, 0o644), ShouldBeNil)
		future := time.Now().Add(2 * time.Second)
		So(os.Chtimes(env.path, future, future), ShouldBeNil)

		Convey("When fetching again", func() {
			w := env.do(http.MethodGet, "/scores", "")

			Convey("Then the mtime check invalidates the cache and the new data shows", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"Outside"`)
			})
		})
	})
}

func TestRateLimiting(t *testing.T) {
	Convey("Given a server limited to one submission burst", t, func() {
		env := newTestEnv(t, api.WithRateLimit(0.001, 1))

		Convey("When two submissions arrive back to back", func() {
			first := env.do(http.MethodPost, "/scores", `{"name":"One","score":10}`)
			second := env.do(http.MethodPost, "/scores", `{"name":"Two","score":20}`)

			Convey("Then the second is rate limited before reaching the core", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
			})
		})

		Convey("When reads arrive at any rate", func() {
			for i := 0; i < 5; i++ {
				So(env.do(http.MethodGet, "/scores", "").Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestCORSAndHealth(t *testing.T) {
	Convey("Given a server with a configured origin", t, func() {
		env := newTestEnv(t, api.WithCORSOrigin("https://games.example"))

		Convey("When a preflight request arrives", func() {
			w := env.do(http.MethodOptions, "/scores", "")

			Convey("Then it is answered without touching the core", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://games.example")
				So(w.Header().Get("Access-Control-Allow-Methods"), ShouldContainSubstring, "POST")
			})
		})

		Convey("When checking liveness and stats", func() {
			So(env.do(http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(env.do(http.MethodGet, "/stats", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("When any request passes through", func() {
			w := env.do(http.MethodGet, "/scores", "")

			Convey("Then a request id is echoed back", func() {
				So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
			})
		})
	})
}
