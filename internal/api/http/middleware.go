package apihttp

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"animestream/catalog/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// statusRecorder captures the response status for logs and metrics. It
// keeps Hijack so websocket upgrades pass through.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if flusher, ok := sr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

// requestIDMiddleware keeps a caller supplied X-Request-ID or mints one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// instrumentMiddleware writes the access log line and the request metrics
// from one recorded response.
func instrumentMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		elapsed := time.Since(start)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sr.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", sr.status),
			slog.Int("bytes", sr.written),
			slog.Int64("durationMs", elapsed.Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		if id := requestID(r.Context()); id != "" {
			attrs = append(attrs, slog.String("requestId", id))
		}
		if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.HasTraceID() {
			attrs = append(attrs, slog.String("traceId", spanCtx.TraceID().String()))
		}
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			attrs = append(attrs, slog.String("q", truncate(q, 80)))
		}
		logger.LogAttrs(r.Context(), requestLogLevel(route, sr.status), "http request", attrs...)
	})
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			logger.Error("handler panic",
				slog.Any("error", recovered),
				slog.String("route", normalizeRoute(r.URL.Path)),
				slog.String("requestId", requestID(r.Context())),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

var fixedRoutes = map[string]bool{
	"/health":        true,
	"/metrics":       true,
	"/search":        true,
	"/listing":       true,
	"/genres":        true,
	"/abbreviations": true,
	"/image":         true,
	"/ws/session":    true,
}

var prefixRoutes = []struct {
	prefix string
	label  string
}{
	{"/categories/", "/categories/{name}"},
	{"/anime/", "/anime/{id}"},
	{"/providers", "/providers"},
}

// normalizeRoute collapses path parameters so metric labels stay bounded.
func normalizeRoute(path string) string {
	if fixedRoutes[path] {
		return path
	}
	for _, route := range prefixRoutes {
		if strings.HasPrefix(path, route.prefix) {
			return route.label
		}
	}
	return "/other"
}

func requestLogLevel(route string, status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	if status >= http.StatusBadRequest {
		return slog.LevelWarn
	}
	if route == "/health" || route == "/image" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// clientIP is the best guess at the caller for logs. Forwarded headers are
// caller supplied, so nothing that enforces limits may key on it.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// limiterKey is the host of the connection peer. Rotating X-Forwarded-For
// or X-Real-IP does not move a caller to a fresh bucket.
func limiterKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	return remote
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

const limiterIdleTTL = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters hands out one token bucket per client address. Buckets idle
// for limiterIdleTTL are swept on the next lookup after a sweep interval.
type clientLimiters struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		clients: make(map[string]*clientLimiter),
	}
}

func (c *clientLimiters) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) > time.Minute {
		for k, entry := range c.clients {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	entry, ok := c.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// rateLimitMiddleware limits each connection peer with its own token bucket.
// A websocket upgrade counts once; messages on an open session are not
// limited here.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	limiters := newClientLimiters(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if !limiters.allow(limiterKey(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
