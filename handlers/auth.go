// Package handlers is the HTTP edge: decode the request, call a service,
// write the response envelope. No business rules and no SQL live here.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/pkg/ratelimit"
	"github.com/mandyibene/family-twigs-backend/services"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// AuthHandler serves /api/auth/*.
type AuthHandler struct {
	authService  services.AuthService
	sessions     services.SessionManager
	loginLimiter ratelimit.Limiter
	clientIP     *ratelimit.ClientIP
	cookies      CookieOptions
	logger       *slog.Logger
}

// NewAuthHandler builds the handler. loginLimiter may be nil; when set, a
// successful login clears the caller's login counter. clientIP must be the
// resolver the rate-limit middleware uses, so the counter it clears is the
// one the middleware filled.
func NewAuthHandler(
	authService services.AuthService,
	sessions services.SessionManager,
	loginLimiter ratelimit.Limiter,
	clientIP *ratelimit.ClientIP,
	cookies CookieOptions,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		authService:  authService,
		sessions:     sessions,
		loginLimiter: loginLimiter,
		clientIP:     clientIP,
		cookies:      cookies,
		logger:       logger,
	}
}

// accessTokenBody is the body of register, login and refresh responses.
type accessTokenBody struct {
	AccessToken string `json:"accessToken"`
}

// Register godoc
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.authService.Register(r.Context(), &req, h.sessionMeta(r))
	if err != nil {
		pkg.Error(w, r, err)
		return
	}

	h.cookies.set(w, pair)
	pkg.JSON(w, http.StatusCreated, accessTokenBody{AccessToken: pair.AccessToken})
}

// Login godoc
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.authService.Login(r.Context(), &req, h.sessionMeta(r))
	if err != nil {
		pkg.Error(w, r, err)
		return
	}

	// A legitimate user who got the password right is not held back by earlier typos.
	if h.loginLimiter != nil {
		if err := h.loginLimiter.Reset(r.Context(), h.clientIP.Resolve(r)); err != nil {
			h.logger.Warn("[ratelimit] failed to reset login counter", "err", err)
		}
	}

	h.cookies.set(w, pair)
	pkg.JSON(w, http.StatusOK, accessTokenBody{AccessToken: pair.AccessToken})
}

// RefreshToken godoc
// POST /api/auth/refresh-token
// Reads the refreshToken cookie and answers with a new access token and a rotated cookie.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := refreshTokenFrom(r)
	if presented == "" {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), presented, h.sessionMeta(r))
	if err != nil {
		if errors.Is(err, pkg.ErrUnauthorized) {
			h.cookies.clear(w)
		}
		pkg.Error(w, r, err)
		return
	}

	h.cookies.set(w, pair)
	pkg.JSON(w, http.StatusOK, accessTokenBody{AccessToken: pair.AccessToken})
}

// Logout godoc
// POST /api/auth/logout
// Always succeeds and always clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), refreshTokenFrom(r))
	h.cookies.clear(w)
	pkg.Success(w, r, http.StatusOK, "successes.logout", nil)
}

// LogoutAll godoc
// POST /api/auth/logout-all
// Requires the caller's own live refresh cookie; ends every session of that user.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	presented := refreshTokenFrom(r)
	h.cookies.clear(w)

	if presented == "" {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	n, err := h.sessions.LogoutAll(r.Context(), presented)
	if err != nil {
		pkg.Error(w, r, err)
		return
	}

	pkg.Success(w, r, http.StatusOK, "successes.logoutAll", map[string]int64{"revoked": n})
}

// ─── Helpers ───

// decodeJSON reads a bounded JSON body into dst. On failure it has already
// written a 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkg.Error(w, r, pkg.ErrBadRequest)
		return false
	}
	return true
}

func (h *AuthHandler) sessionMeta(r *http.Request) models.SessionMeta {
	return models.SessionMeta{
		UserAgent: r.UserAgent(),
		IP:        h.clientIP.Resolve(r),
	}
}

type contextKey string

// UserIDContextKey carries the authenticated user id, set by the auth middleware.
const UserIDContextKey contextKey = "user_id"

// userIDFrom returns the id stored by the auth middleware.
func userIDFrom(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(UserIDContextKey).(string)
	return id, ok && id != ""
}
