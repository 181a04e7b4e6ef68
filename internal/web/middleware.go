package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Middleware wraps a handler call.
type Middleware func(w http.ResponseWriter, r *http.Request, next http.Handler)

// Wrap applies m to next.
func Wrap(m Middleware, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m(w, r, next)
	}
}

// Chain applies ms to h; the first middleware runs outermost.
func Chain(h http.Handler, ms ...Middleware) http.Handler {
	for i := len(ms) - 1; i >= 0; i-- {
		h = Wrap(ms[i], h)
	}
	return h
}

type requestIDKey struct{}

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns the id WithRequestID attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID reuses the caller's request id or generates one.
func WithRequestID(w http.ResponseWriter, r *http.Request, next http.Handler) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// WithAccessLog logs one line per request.
func WithAccessLog(w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	next.ServeHTTP(rec, r)

	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	event := log.Debug()
	if rec.status >= http.StatusInternalServerError {
		event = log.Warn()
	}
	event.
		Str("sys", "http").
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status_code", rec.status).
		Int("len", rec.size).
		Dur("dur", time.Since(start)).
		Str("request_id", RequestID(r.Context())).
		Msg("request")
}

// WithServerTiming reports handler metrics in the Server-Timing header.
func WithServerTiming(w http.ResponseWriter, r *http.Request, next http.Handler) {
	servertiming.Middleware(next, nil).ServeHTTP(w, r)
}

// timing starts a Server-Timing metric when the request carries a timing
// header. The returned func stops it.
func timing(ctx context.Context, name string) func() {
	h := servertiming.FromContext(ctx)
	if h == nil {
		return func() {}
	}
	m := h.NewMetric(name).Start()
	return func() { m.Stop() }
}

const (
	// LimiterIdleTTL is how long a client's limiter is kept after its last
	// request.
	LimiterIdleTTL = 10 * time.Minute
	// LimiterCleanupInterval is the minimum time between two sweeps of idle
	// limiters.
	LimiterCleanupInterval = 5 * time.Minute
)

// RateLimiter throttles mutating requests per client IP.
type RateLimiter struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond mutating requests per client with burst.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *RateLimiter) limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	e, ok := l.limiters[client]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[client] = e
	}
	e.lastSeen = now
	return e.lim
}

// cleanup drops limiters idle for LimiterIdleTTL, at most once per
// LimiterCleanupInterval. Callers hold l.mu.
func (l *RateLimiter) cleanup(now time.Time) {
	if l.lastCleanup.IsZero() {
		l.lastCleanup = now
		return
	}
	if now.Sub(l.lastCleanup) < LimiterCleanupInterval {
		return
	}
	l.lastCleanup = now

	expired := 0
	for client, e := range l.limiters {
		if now.Sub(e.lastSeen) >= LimiterIdleTTL {
			delete(l.limiters, client)
			expired++
		}
	}
	if expired > 0 {
		log.Debug().Int("expired", expired).Int("active", len(l.limiters)).Msg("limiter cleanup")
	}
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware rejects mutating requests over the limit with 429.
func (l *RateLimiter) Middleware(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if l.rate <= 0 || !mutating(r.Method) {
		next.ServeHTTP(w, r)
		return
	}

	if !l.limiter(clientIP(r)).Allow() {
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return
	}
	next.ServeHTTP(w, r)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
