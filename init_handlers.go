package main

import (
	"log/slog"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/handlers"
)

// Handlers holds every HTTP handler.
type Handlers struct {
	Auth *handlers.AuthHandler
	User *handlers.UserHandler
}

func initHandlers(svcs *Services, limiters *RateLimiters, cfg *config.Config, logger *slog.Logger) *Handlers {
	cookies := handlers.CookieOptions{
		Secure: cfg.Auth.CookieSecure,
		MaxAge: cfg.Auth.RefreshTTL,
	}
	return &Handlers{
		Auth: handlers.NewAuthHandler(svcs.Auth, svcs.Sessions, limiters.Login, limiters.ClientIP, cookies, logger),
		User: handlers.NewUserHandler(svcs.Auth, svcs.Sessions),
	}
}
