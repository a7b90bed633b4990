package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/frostline/scoreboard/pkg/metrics"
)

// limiterIdleTTL is how long an idle client's limiter survives before the
// cleanup pass drops it.
const limiterIdleTTL = 10 * time.Minute

// clientLimiter caps submission frequency per client identity. It is policy
// in front of the core logic: rate-limited requests never reach the store.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket

	rps         rate.Limit
	burst       int
	trustHeader string
	lastSweep   time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		clients:   make(map[string]*clientBucket),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// middleware limits POSTs per client. Reads pass through untouched: the read
// path is cached and cheap.
func (l *clientLimiter) middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(l.identify(r)) {
			metrics.RecordRateLimited()
			writeError(w, http.StatusTooManyRequests, "rate_limited", NewKind("api.rate_limit", ErrRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	}
}

// identify derives the client identity from the configured proxy header or
// the transport peer address.
func (l *clientLimiter) identify(r *http.Request) string {
	if l.trustHeader != "" {
		if v := r.Header.Get(l.trustHeader); v != "" {
			// First hop of a comma-separated forwarding chain.
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
			return strings.TrimSpace(v)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *clientLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for key, b := range l.clients {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[id]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[id] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
