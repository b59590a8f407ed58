package ddnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ddnet-tracker/internal/metrics"
)

const (
	DefaultServersURL = "https://master1.ddnet.org/ddnet/15/servers.json"

	// maxBodyBytes caps the server list download; the real list is a few MB.
	maxBodyBytes = 32 << 20
)

var (
	// ErrUpstream is wrapped by every fetch failure: transport errors, non-2xx
	// statuses, malformed payloads and an open circuit breaker.
	ErrUpstream = errors.New("ddnet server list unavailable")
	// ErrMalformed marks a response that is not a server list.
	ErrMalformed = errors.New("malformed server list")
)

// Client fetches the DDNet master server list. A single request is made per
// cache window no matter how many callers ask concurrently; there is no retry.
//
// The shared request is detached from the caller that started it and bounded
// by the fetch timeout instead, so a caller that gives up neither fails the
// callers waiting on the same request nor counts against the circuit breaker.
type Client struct {
	httpClient   *http.Client
	url          string
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	group        singleflight.Group
	clock        clockwork.Clock
	cacheTTL     time.Duration
	fetchTimeout time.Duration
	metrics      *metrics.UpstreamMetrics

	mu       sync.RWMutex
	cached   *ServerList
	cachedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithURL points the client at another master server list.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// WithHTTPClient replaces the transport used for list downloads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCacheTTL sets how long a fetched list is reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithRateLimit caps outbound requests to perSecond with a burst of one.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithFetchTimeout bounds one upstream request, including the rate limiter wait.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) { c.fetchTimeout = d }
}

// WithClock sets the clock used for the cache window and fetch timings.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithMetrics records fetch outcomes, durations and breaker state in m.
func WithMetrics(m *metrics.UpstreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient returns a client for the public DDNet master list, cached for
// 10s and limited to one request per second unless opts say otherwise.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		url:          DefaultServersURL,
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
		clock:        clockwork.NewRealClock(),
		cacheTTL:     10 * time.Second,
		fetchTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ddnet-master",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			if c.metrics != nil {
				c.metrics.BreakerState.Set(float64(to))
			}
		},
	})

	return c
}

// FetchServers returns the current server list. Cancelling ctx only stops
// this caller from waiting; an in-flight request keeps going for the others.
func (c *Client) FetchServers(ctx context.Context) (*ServerList, error) {
	if list, ok := c.cachedList(); ok {
		return list, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := c.group.DoChan("servers", func() (any, error) {
		if list, ok := c.cachedList(); ok {
			return list, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		list, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.store(list)
		return list, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
				c.record("breaker_open")
				return nil, fmt.Errorf("%w: %w", ErrUpstream, res.Err)
			}
			return nil, res.Err
		}
		return res.Val.(*ServerList), nil
	}
}

// FindPlayerByNames fetches the server list and returns the online subset of
// names, at most one match per server.
func (c *Client) FindPlayerByNames(ctx context.Context, names []string) ([]PlayerStatus, error) {
	if len(names) == 0 {
		return []PlayerStatus{}, nil
	}

	list, err := c.FetchServers(ctx)
	if err != nil {
		return nil, err
	}
	return FindPlayers(list, names), nil
}

// LocatePlayersByNames fetches the server list and returns where each online
// name plays. Names sharing a server are all reported.
func (c *Client) LocatePlayersByNames(ctx context.Context, names []string) ([]PlayerStatus, error) {
	if len(names) == 0 {
		return []PlayerStatus{}, nil
	}

	list, err := c.FetchServers(ctx)
	if err != nil {
		return nil, err
	}
	return LocatePlayers(list, names), nil
}

// fetch waits for the rate limiter, then makes one request through the
// breaker. Only the request itself is counted by the breaker.
func (c *Client) fetch(ctx context.Context) (*ServerList, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrUpstream, err)
	}

	v, err := c.breaker.Execute(func() (any, error) {
		start := c.clock.Now()
		list, err := c.doFetch(ctx)
		if c.metrics != nil {
			c.metrics.FetchDuration.Observe(c.clock.Since(start).Seconds())
		}
		if err != nil {
			c.record("error")
			slog.Error("Server list fetch failed", "url", c.url, "error", err)
			return nil, err
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}

	list := v.(*ServerList)
	c.record("success")
	if c.metrics != nil {
		c.metrics.ServersSeen.Set(float64(len(list.Servers)))
	}
	return list, nil
}

func (c *Client) doFetch(ctx context.Context) (*ServerList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrUpstream, err)
	}

	list, err := ParseServerList(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return list, nil
}

// ParseServerList decodes a master server payload. A missing or null
// "servers" field yields an empty list; any other non-array value is
// ErrMalformed. Individual entries that fail to decode are skipped.
func ParseServerList(body []byte) (*ServerList, error) {
	var envelope struct {
		Servers json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	list := &ServerList{Servers: []Server{}}
	raw := bytes.TrimSpace(envelope.Servers)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return list, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("%w: servers is not an array", ErrMalformed)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, entry := range entries {
		var server Server
		if err := json.Unmarshal(entry, &server); err != nil {
			continue
		}
		list.Servers = append(list.Servers, server)
	}
	return list, nil
}

func (c *Client) cachedList() (*ServerList, bool) {
	if c.cacheTTL <= 0 {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cached == nil || c.clock.Since(c.cachedAt) >= c.cacheTTL {
		return nil, false
	}
	return c.cached, true
}

func (c *Client) store(list *ServerList) {
	if c.cacheTTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = list
	c.cachedAt = c.clock.Now()
}

func (c *Client) record(result string) {
	if c.metrics != nil {
		c.metrics.FetchesTotal.WithLabelValues(result).Inc()
	}
}
