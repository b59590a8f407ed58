package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Host        string `env:"HOST" default:"0.0.0.0"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// CORSAllowedOrigins is a comma separated list; empty allows any origin
	// without credentials.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`

	SessionSecret       string        `env:"SESSION_SECRET"`
	SessionTTL          time.Duration `env:"SESSION_TTL" default:"168h"` // 7 days
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" default:"1h"`
	BcryptCost          int           `env:"BCRYPT_COST" default:"12"`

	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT" default:"10"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" default:"1m"`

	// TrustedProxies lists the CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For header is believed. Empty keys clients on the socket
	// address alone.
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL" default:"5m"`

	DDNetServersURL    string        `env:"DDNET_SERVERS_URL" default:"https://master1.ddnet.org/ddnet/15/servers.json"`
	DDNetCacheTTL      time.Duration `env:"DDNET_CACHE_TTL" default:"10s"`
	DDNetFetchTimeout  time.Duration `env:"DDNET_FETCH_TIMEOUT" default:"10s"`
	DDNetRatePerSecond float64       `env:"DDNET_RATE_PER_SECOND" default:"1"`
	LivePollInterval   time.Duration `env:"LIVE_POLL_INTERVAL" default:"30s"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllowedOrigins splits CORSAllowedOrigins, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// TrustedProxyRanges parses TrustedProxies. A bare address is a single-host range.
func (c *Config) TrustedProxyRanges() ([]*net.IPNet, error) {
	var ranges []*net.IPNet
	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		ranges = append(ranges, ipNet)
	}
	return ranges, nil
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":   cfg.DatabaseURL,
		"SESSION_SECRET": cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	// bcrypt rejects costs outside 4..31; below 10 is too cheap for stored passwords.
	if cfg.BcryptCost < 10 || cfg.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 10 and 31, got %d", cfg.BcryptCost)
	}
	if cfg.LoginRateLimit <= 0 || cfg.LoginRateWindow <= 0 {
		return errors.New("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}
	if _, err := cfg.TrustedProxyRanges(); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	if cfg.DDNetRatePerSecond <= 0 {
		return errors.New("DDNET_RATE_PER_SECOND must be positive")
	}

	return nil
}
