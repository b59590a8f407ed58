package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"ddnet-tracker/internal/auth"
	"ddnet-tracker/internal/config"
	"ddnet-tracker/internal/metrics"
	"ddnet-tracker/internal/redis"
	"ddnet-tracker/internal/settings"
	"ddnet-tracker/internal/tracker"
)

// HealthChecker reports component health as a flat string map with at least
// a "status" key of "up" or "down".
type HealthChecker interface {
	Health() map[string]string
}

// Deps are the services the HTTP layer is built on. DB and Redis are
// optional; when nil they are left out of /health and redis pub/sub is off.
type Deps struct {
	Auth     *auth.Service
	Settings *settings.Service
	Tracker  *tracker.Service
	DB       HealthChecker
	Redis    *goredis.Client
	Registry *prometheus.Registry
	Clock    clockwork.Clock
}

type Server struct {
	cfg      *config.Config
	auth     *auth.Service
	settings *settings.Service
	tracker  *tracker.Service
	db       HealthChecker
	redis    *goredis.Client
	clock    clockwork.Clock

	cookies           *sessions.CookieStore
	extractIP         echo.IPExtractor
	loginLimiter      *RateLimiter
	connectionManager *ConnectionManager

	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	authMetrics *metrics.AuthMetrics

	// background tasks
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	reg := deps.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:               cfg,
		auth:              deps.Auth,
		settings:          deps.Settings,
		tracker:           deps.Tracker,
		db:                deps.DB,
		redis:             deps.Redis,
		clock:             clock,
		cookies:           newCookieStore(cfg, deps.Auth.SessionTTL()),
		extractIP:         newIPExtractor(cfg),
		loginLimiter:      NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, clock),
		connectionManager: NewConnectionManager(),
		registry:          reg,
		httpMetrics:       metrics.NewHTTPMetrics(reg),
		authMetrics:       metrics.NewAuthMetrics(reg),
		ctx:               ctx,
		cancel:            cancel,
	}
	return s
}

// HTTPServer returns the configured http.Server for s.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(s.cfg.Host, s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// StartBackgroundTasks launches the session reaper, the rate limiter and
// settings cache sweeps and, with redis configured, the settings
// invalidation subscriber. Shutdown stops them.
func (s *Server) StartBackgroundTasks() {
	s.goTask("session-reaper", func(ctx context.Context) {
		s.sessionReaperTask(ctx, s.cfg.SessionReapInterval)
	})
	s.goTask("rate-limiter-cleanup", func(ctx context.Context) {
		s.rateLimiterCleanupTask(ctx, s.cfg.LoginRateWindow)
	})

	stopEviction := s.settings.StartEvictionTimer(time.Minute)
	s.goTask("settings-eviction", func(ctx context.Context) {
		<-ctx.Done()
		stopEviction()
	})

	if s.redis != nil {
		sub := redis.NewSettingsSubscriber(s.redis, s.settings)
		s.goTask("settings-invalidation", func(ctx context.Context) {
			if err := sub.Start(ctx, nil); err != nil {
				slog.Error("Settings invalidation subscriber stopped", "error", err)
			}
		})
	}
}

func (s *Server) goTask(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Debug("Background task started", "task", name)
		fn(s.ctx)
		slog.Debug("Background task stopped", "task", name)
	}()
}

// Shutdown closes live feed connections and waits for background tasks to
// exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.connectionManager.CloseAll("Server shutting down")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background tasks did not stop: %w", ctx.Err())
	}
}

// sessionReaperTask deletes expired sessions every interval.
func (s *Server) sessionReaperTask(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.reapSessions(ctx)
		}
	}
}

func (s *Server) reapSessions(ctx context.Context) {
	purged, err := s.auth.PurgeExpiredSessions(ctx)
	if err != nil {
		slog.Error("Session reaper failed", "error", err)
		return
	}
	if purged > 0 {
		s.authMetrics.SessionsPurged.Add(float64(purged))
		slog.Info("Session reaper removed expired sessions", "count", purged)
	}
}

func (s *Server) rateLimiterCleanupTask(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.loginLimiter.Cleanup()
		}
	}
}
