package main

import (
	"log/slog"
	"net/http"

	"github.com/mandyibene/family-twigs-backend/middleware"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/pkg/metrics"
	"github.com/mandyibene/family-twigs-backend/services"
)

// initRoutes registers every endpoint on mux and returns the mux wrapped in
// the locale middleware.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	sessions services.SessionManager,
	limiters *RateLimiters,
	m *metrics.Metrics,
	logger *slog.Logger,
) http.Handler {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(sessions)
	registerMw := middleware.NewRateLimitMiddleware(limiters.Register, limiters.ClientIP, m, logger)
	loginMw := middleware.NewRateLimitMiddleware(limiters.Login, limiters.ClientIP, m, logger)
	passwordMw := middleware.NewRateLimitMiddleware(limiters.UpdatePassword, limiters.ClientIP, m, logger)

	// ─── Middleware Chain Helpers ───
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}
	limited := func(mw *middleware.RateLimitMiddleware, handler http.HandlerFunc) http.Handler {
		return mw.Require(handler)
	}

	// Health
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "family-twigs"})
	})
	mux.Handle("GET /metrics", m.Handler())

	// Auth
	mux.Handle("POST /api/auth/register", limited(registerMw, h.Auth.Register))
	mux.Handle("POST /api/auth/login", limited(loginMw, h.Auth.Login))
	mux.HandleFunc("POST /api/auth/refresh-token", h.Auth.RefreshToken)
	mux.HandleFunc("POST /api/auth/logout", h.Auth.Logout)
	mux.HandleFunc("POST /api/auth/logout-all", h.Auth.LogoutAll)

	// Current user
	mux.Handle("GET /api/users/me", auth(h.User.Me))
	mux.Handle("PUT /api/users/me", auth(h.User.UpdateProfile))
	mux.Handle("PUT /api/users/me/password", authMw.Require(limited(passwordMw, h.User.UpdatePassword)))
	mux.Handle("GET /api/users/me/sessions", auth(h.User.Sessions))
	mux.Handle("DELETE /api/users/me/sessions/{sessionId}", auth(h.User.RevokeSession))

	return middleware.Locale(mux)
}
