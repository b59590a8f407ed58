package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"ddnet-tracker/internal/config"
	apperrors "ddnet-tracker/internal/errors"
	"ddnet-tracker/internal/logging"
)

// RateLimiter implements per-key rate limiting using a sliding window.
// Keys are client IPs for the login and register endpoints.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	clock       clockwork.Clock
	requests    map[string][]time.Time // key -> timestamps of recent requests
	mu          sync.Mutex
}

// NewRateLimiter allows maxRequests per key within any window-long span.
func NewRateLimiter(maxRequests int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		clock:       clock,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is within the limit.
// Denied requests are not recorded.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[key]
	valid := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}

	r.requests[key] = append(valid, now)
	return true
}

// Cleanup drops keys with no request inside the window.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-r.window)
	for key, timestamps := range r.requests {
		if !slices.ContainsFunc(timestamps, func(ts time.Time) bool { return ts.After(cutoff) }) {
			delete(r.requests, key)
		}
	}
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// rateLimit rejects requests from a client IP over the login limit with 429.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if !s.loginLimiter.Allow(ip) {
			slog.WarnContext(r.Context(), "Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", retryAfter(s.cfg.LoginRateWindow))
			s.writeError(w, r, apperrors.RateLimitedError("Too many attempts, please try again later"))
			return
		}
		next(w, r)
	}
}

func retryAfter(window time.Duration) string {
	return strconv.Itoa(max(1, int(window.Round(time.Second)/time.Second)))
}

// newIPExtractor trusts X-Forwarded-For only on connections from the
// configured proxy ranges and then takes the right-most hop outside them.
// With no ranges configured every client is keyed on its socket address.
func newIPExtractor(cfg *config.Config) echo.IPExtractor {
	ranges, err := cfg.TrustedProxyRanges()
	if err != nil {
		slog.Warn("Ignoring invalid trusted proxies", "error", err)
		ranges = nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, ipRange := range ranges {
		opts = append(opts, echo.TrustIPRange(ipRange))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// clientIP identifies the client for rate limiting and logs.
func (s *Server) clientIP(r *http.Request) string {
	if ip := s.extractIP(r); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// corsMiddleware answers preflights and grants credentials to configured origins only
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := s.cfg.AllowedOrigins()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(allowed) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Credentials", "false")
		case origin != "" && slices.Contains(allowed, origin):
			// The session cookie only travels with credentials, which
			// require an exact origin.
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter records the status code for the request log
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// maxRequestIDLength bounds a client supplied X-Request-ID.
const maxRequestIDLength = 64

// loggingMiddleware tags the request context with a request ID, taken from
// X-Request-ID when the client sends a sane one, and logs each request once
// it completes.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(logging.With(r.Context(), logging.RequestID(requestID)))

		next.ServeHTTP(lw, r)

		level := slog.LevelInfo
		if lw.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.status,
			"duration", s.clock.Since(start),
			"ip", s.clientIP(r),
		)
	})
}

// recoveryMiddleware turns a handler panic into a logged 500
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.ErrorContext(r.Context(), "Panic in HTTP handler",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				writeJSON(w, http.StatusInternalServerError, Response{Success: false, Message: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
