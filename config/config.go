// Package config builds the single Config the process runs with.
//
// Values come from environment variables; a .env file in the working
// directory is loaded first when present. Config is built once in main and
// handed down; nothing below main reads the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environments recognized by APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// ErrConfig marks every configuration error.
var ErrConfig = errors.New("config error")

type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Reaper    ReaperConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver   string // sqlite | postgres | memory
	Path     string // sqlite file
	URL      string // postgres DSN
	MaxConns int32
}

// AuthConfig is everything the token codec and the session manager need.
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// StoreTimeout bounds every session store call made on behalf of a request.
	StoreTimeout time.Duration
	// CookieSecure sets the Secure attribute on the refresh cookie.
	CookieSecure bool
}

// RateLimitRule is one guarded action's window and budget.
type RateLimitRule struct {
	Window      time.Duration
	MaxAttempts int
}

type RateLimitConfig struct {
	Backend  string // memory | redis
	Disabled bool
	// TrustedProxies are the reverse proxies allowed to report the client
	// address in X-Forwarded-For / X-Real-IP. Empty means those headers are
	// ignored and the TCP peer is the client.
	TrustedProxies []netip.Prefix
	Register       RateLimitRule
	Login          RateLimitRule
	UpdatePassword RateLimitRule
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ReaperConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

type LogConfig struct {
	Level string
}

// IsProduction reports APP_ENV=production.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// IsTest reports APP_ENV=test.
func (c *Config) IsTest() bool { return c.Env == EnvTest }

// Addr is the listen address, e.g. "0.0.0.0:3000".
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv(os.LookupEnv)
}

// LoadFromEnv builds a Config from lookup, which has the signature of os.LookupEnv.
func LoadFromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := envReader{lookup: lookup}

	env := strings.ToLower(e.str("APP_ENV", EnvDevelopment))
	switch env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return nil, fmt.Errorf("%w: invalid APP_ENV %q", ErrConfig, env)
	}
	isTest := env == EnvTest

	// Test runs use short windows so throttling can be exercised quickly.
	registerDefault, loginDefault, passwordDefault := rule(60*time.Minute, 5), rule(15*time.Minute, 5), rule(15*time.Minute, 5)
	if isTest {
		registerDefault, loginDefault, passwordDefault = rule(time.Second, 2), rule(time.Second, 2), rule(time.Second, 2)
	}

	cfg := &Config{
		Env: env,
		Server: ServerConfig{
			Host:        e.str("SERVER_HOST", "0.0.0.0"),
			Port:        e.integer("SERVER_PORT", 3000),
			CORSOrigins: e.list("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(e.str("DATABASE_DRIVER", "sqlite")),
			Path:     e.str("DATABASE_PATH", "./data/family-twigs.db"),
			URL:      e.str("DATABASE_URL", ""),
			MaxConns: int32(e.integer("DATABASE_MAX_CONNS", 0)),
		},
		Auth: AuthConfig{
			AccessSecret:  e.str("ACCESS_TOKEN_SECRET", ""),
			RefreshSecret: e.str("REFRESH_TOKEN_SECRET", ""),
			AccessTTL:     e.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL:    e.duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:        e.str("TOKEN_ISSUER", "family-twigs"),
			StoreTimeout:  e.duration("STORE_TIMEOUT", 5*time.Second),
			CookieSecure:  env == EnvProduction,
		},
		RateLimit: RateLimitConfig{
			Backend:        strings.ToLower(e.str("RATE_LIMIT_BACKEND", "memory")),
			// Only honored in test runs.
			Disabled:       isTest && e.boolean("DISABLE_RATE_LIMIT", false),
			TrustedProxies: e.prefixes("TRUSTED_PROXIES"),
			Register: RateLimitRule{
				Window:      e.duration("RATE_LIMIT_REGISTER_WINDOW", registerDefault.Window),
				MaxAttempts: e.integer("RATE_LIMIT_REGISTER_MAX", registerDefault.MaxAttempts),
			},
			Login: RateLimitRule{
				Window:      e.duration("RATE_LIMIT_LOGIN_WINDOW", loginDefault.Window),
				MaxAttempts: e.integer("RATE_LIMIT_LOGIN_MAX", loginDefault.MaxAttempts),
			},
			UpdatePassword: RateLimitRule{
				Window:      e.duration("RATE_LIMIT_UPDATE_PASSWORD_WINDOW", passwordDefault.Window),
				MaxAttempts: e.integer("RATE_LIMIT_UPDATE_PASSWORD_MAX", passwordDefault.MaxAttempts),
			},
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
		},
		Reaper: ReaperConfig{
			Enabled:  e.boolean("SESSION_REAPER_ENABLED", true),
			Interval: e.duration("SESSION_REAPER_INTERVAL", 7*24*time.Hour),
			Timeout:  e.duration("SESSION_REAPER_TIMEOUT", time.Minute),
		},
		Log: LogConfig{
			Level: strings.ToLower(e.str("LOG_LEVEL", "info")),
		},
	}

	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...))
	}

	if c.Auth.AccessSecret == "" {
		fail("ACCESS_TOKEN_SECRET is required")
	}
	if c.Auth.RefreshSecret == "" {
		fail("REFRESH_TOKEN_SECRET is required")
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		fail("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		fail("token TTLs must be positive")
	}
	if c.Auth.StoreTimeout <= 0 {
		fail("STORE_TIMEOUT must be positive")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			fail("DATABASE_PATH is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			fail("DATABASE_URL is required for postgres")
		}
	case "memory":
	default:
		fail("unknown DATABASE_DRIVER %q", c.Database.Driver)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			fail("REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		fail("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}

	for name, r := range map[string]RateLimitRule{
		"register":        c.RateLimit.Register,
		"login":           c.RateLimit.Login,
		"update-password": c.RateLimit.UpdatePassword,
	} {
		if r.Window <= 0 || r.MaxAttempts <= 0 {
			fail("rate limit %s: window and max attempts must be positive", name)
		}
	}

	if c.Reaper.Enabled && (c.Reaper.Interval <= 0 || c.Reaper.Timeout <= 0) {
		fail("SESSION_REAPER_INTERVAL and SESSION_REAPER_TIMEOUT must be positive")
	}

	return errors.Join(errs...)
}

func rule(window time.Duration, max int) RateLimitRule {
	return RateLimitRule{Window: window, MaxAttempts: max}
}

// envReader collects parse errors so one Load reports every bad variable.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) str(key, fallback string) string {
	if val, ok := e.lookup(key); ok {
		return strings.TrimSpace(val)
	}
	return fallback
}

func (e *envReader) integer(key string, fallback int) int {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: invalid %s: %v", ErrConfig, key, err))
		return fallback
	}
	return n
}

func (e *envReader) boolean(key string, fallback bool) bool {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: invalid %s: %v", ErrConfig, key, err))
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := e.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: invalid %s: %v", ErrConfig, key, err))
		return fallback
	}
	return d
}

func (e *envReader) list(key string, fallback []string) []string {
	raw, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// prefixes parses a comma-separated list of CIDRs. A bare address is taken as
// a single-host prefix (/32 or /128).
func (e *envReader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range e.list(key, nil) {
		if !strings.Contains(item, "/") {
			addr, err := netip.ParseAddr(item)
			if err != nil {
				e.errs = append(e.errs, fmt.Errorf("%w: invalid %s entry %q: %v", ErrConfig, key, item, err))
				continue
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(item)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%w: invalid %s entry %q: %v", ErrConfig, key, item, err))
			continue
		}
		out = append(out, p.Masked())
	}
	return out
}
