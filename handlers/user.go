package handlers

import (
	"net/http"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/services"
)

// UserHandler serves /api/users/me and its sub-resources. Every route sits
// behind the auth middleware.
type UserHandler struct {
	authService services.AuthService
	sessions    services.SessionManager
}

func NewUserHandler(authService services.AuthService, sessions services.SessionManager) *UserHandler {
	return &UserHandler{authService: authService, sessions: sessions}
}

// Me godoc
// GET /api/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	user, err := h.authService.Me(r.Context(), userID)
	if err != nil {
		pkg.Error(w, r, err)
		return
	}

	pkg.Success(w, r, http.StatusOK, "successes.userFetched", map[string]any{"user": user})
}

// UpdateProfile godoc
// PUT /api/users/me
// Body: { "firstName"?, "lastName"?, "pseudo"?, "lang"? }
// 409 PSEUDO_TAKEN when another user already holds the pseudo.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	var req models.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), userID, &req)
	if err != nil {
		pkg.Error(w, r, err)
		return
	}

	pkg.Success(w, r, http.StatusOK, "successes.userFetched", map[string]any{"user": user})
}

// UpdatePassword godoc
// PUT /api/users/me/password
// Body: { "currentPassword", "newPassword", "confirmNewPassword" }
func (h *UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	var req models.UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ChangePassword(r.Context(), userID, &req); err != nil {
		pkg.Error(w, r, err)
		return
	}

	pkg.Success(w, r, http.StatusOK, "successes.passwordUpdated", nil)
}

// Sessions godoc
// GET /api/users/me/sessions
// The session holding the request's refresh cookie is marked isCurrent.
func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	list, err := h.sessions.ListSessions(r.Context(), userID, refreshTokenFrom(r))
	if err != nil {
		pkg.Error(w, r, err)
		return
	}

	pkg.Success(w, r, http.StatusOK, "successes.sessionsFetched", map[string]any{"sessions": list})
}

// RevokeSession godoc
// DELETE /api/users/me/sessions/{sessionId}
func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		pkg.Error(w, r, pkg.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(r.Context(), userID, r.PathValue("sessionId")); err != nil {
		pkg.Error(w, r, err)
		return
	}

	pkg.Success(w, r, http.StatusOK, "successes.sessionRevoked", nil)
}
