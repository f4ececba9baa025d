package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/pkg/metrics"
	"github.com/mandyibene/family-twigs-backend/pkg/ratelimit"
	"github.com/mandyibene/family-twigs-backend/services"
)

// Services holds every service instance.
type Services struct {
	Sessions services.SessionManager
	Auth     services.AuthService
	Reaper   services.SessionReaper
}

// initServices builds the codec and the services on top of repos. The codec
// and every service share the same clock.
func initServices(cfg *config.Config, repos *Repositories, m *metrics.Metrics, logger *slog.Logger) (*Services, error) {
	codec, err := services.NewTokenCodec(cfg.Auth, nil)
	if err != nil {
		return nil, err
	}

	sessions := services.NewSessionManager(cfg.Auth, codec, repos.Session, repos.User, logger, m, nil)
	auth := services.NewAuthService(repos.User, sessions, logger, cfg.Auth.StoreTimeout, nil)
	reaper := services.NewSessionReaper(repos.Session, cfg.Reaper.Interval, cfg.Reaper.Timeout, logger, m, nil)

	return &Services{
		Sessions: sessions,
		Auth:     auth,
		Reaper:   reaper,
	}, nil
}

// RateLimiters holds one limiter per guarded action and the resolver that
// turns a request into the key they count.
type RateLimiters struct {
	Register       ratelimit.Limiter
	Login          ratelimit.Limiter
	UpdatePassword ratelimit.Limiter
	ClientIP       *ratelimit.ClientIP
}

// initRateLimiters builds the limiters on the configured backend. The returned
// func stops background eviction (memory) or closes the client (redis).
func initRateLimiters(ctx context.Context, cfg *config.Config) (*RateLimiters, func(), error) {
	rl := cfg.RateLimit
	policies := []ratelimit.Policy{
		{
			Action:      "register",
			Window:      rl.Register.Window,
			MaxAttempts: rl.Register.MaxAttempts,
			Code:        "TOO_MANY_REGISTER_ATTEMPTS",
			MessageKey:  "errors.tooManyRegister",
		},
		{
			Action:      "login",
			Window:      rl.Login.Window,
			MaxAttempts: rl.Login.MaxAttempts,
			Code:        "TOO_MANY_LOGIN_ATTEMPTS",
			MessageKey:  "errors.tooManyLogin",
		},
		{
			Action:      "update-password",
			Window:      rl.UpdatePassword.Window,
			MaxAttempts: rl.UpdatePassword.MaxAttempts,
			Code:        "TOO_MANY_UPDATE_PASSWORD_ATTEMPTS",
			MessageKey:  "errors.tooManyUpdatePassword",
		},
	}
	opts := ratelimit.Options{Disabled: rl.Disabled}
	if rl.Disabled {
		slog.Warn("[main] rate limiting disabled (APP_ENV=test, DISABLE_RATE_LIMIT=true)")
	}

	built := make([]ratelimit.Limiter, 0, len(policies))
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	switch rl.Backend {
	case "redis":
		client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		for _, p := range policies {
			l, err := ratelimit.NewRedisLimiter(client, p, opts)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			built = append(built, l)
		}

	case "memory":
		for _, p := range policies {
			l, err := ratelimit.NewMemoryLimiter(p, opts)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, l.Close)
			built = append(built, l)
		}

	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}

	slog.Info("[main] rate limiters ready", "backend", rl.Backend, "trusted_proxies", len(rl.TrustedProxies))
	return &RateLimiters{
		Register:       built[0],
		Login:          built[1],
		UpdatePassword: built[2],
		ClientIP:       ratelimit.NewClientIP(rl.TrustedProxies),
	}, closeAll, nil
}
