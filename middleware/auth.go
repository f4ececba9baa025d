// Package middleware holds the func(next http.Handler) http.Handler layers
// that run before handlers: locale detection, bearer authentication and
// per-action rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mandyibene/family-twigs-backend/handlers"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/services"
)

// AuthMiddleware checks the access token. It is stateless: no store lookup,
// so a deleted user keeps access until the token expires.
type AuthMiddleware struct {
	sessions services.SessionManager
}

func NewAuthMiddleware(sessions services.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// Require rejects the request with 401 unless it carries
// "Authorization: Bearer <access token>". The user id is put on the context
// under handlers.UserIDContextKey.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			pkg.Error(w, r, pkg.ErrUnauthorized)
			return
		}

		userID, err := m.sessions.ValidateAccess(token)
		if err != nil {
			pkg.Error(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
