package middleware

import (
	"net/http"

	"github.com/mandyibene/family-twigs-backend/pkg/i18n"
)

const localeCookieName = "locale"

// Locale resolves the response language from Accept-Language, then the locale
// cookie, and stores it on the request context for pkg.Error / pkg.Success.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookieLocale string
		if c, err := r.Cookie(localeCookieName); err == nil {
			cookieLocale = c.Value
		}

		lang := i18n.DetectLocale(r.Header.Get("Accept-Language"), cookieLocale)
		w.Header().Set("Content-Language", lang)
		next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), lang)))
	})
}
