package handlers

import (
	"net/http"
	"time"

	"github.com/mandyibene/family-twigs-backend/models"
)

const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/api"
)

// CookieOptions controls the refresh token cookie.
type CookieOptions struct {
	// Secure is on in production only.
	Secure bool
	// MaxAge is used when a TokenPair does not carry its own lifetime.
	MaxAge time.Duration
}

func (o CookieOptions) set(w http.ResponseWriter, pair *models.TokenPair) {
	maxAge := int(pair.RefreshExpiresIn)
	if maxAge <= 0 {
		maxAge = int(o.MaxAge / time.Second)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (o CookieOptions) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshTokenFrom(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
