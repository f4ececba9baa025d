// Package i18n chooses the text of API messages in the caller's language.
//
// The locale is resolved once per request (see middleware.Locale) in this order:
//  1. first two letters of the Accept-Language header
//  2. the "locale" cookie
//  3. DefaultLanguage
//
// Only the text changes with the locale; error codes and status codes do not.
//
//	l := i18n.NewLocalizer("fr")
//	msg := l.T("errors.invalidCredentials")
//	// → "Email ou mot de passe invalide."
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
)

// SupportedLanguages lists the locales shipped in locales/.
var SupportedLanguages = []string{"en", "fr"}

// DefaultLanguage is used when nothing usable was sent by the client.
const DefaultLanguage = "en"

// translations is map[lang]map[flatKey]text. Written once by Load, read-only afterwards.
var (
	translations map[string]map[string]string
	loadOnce     sync.Once
	loadErr      error
)

// Load reads one <lang>.json per supported language from localesFS.
// Nested objects are flattened into dot keys: {"errors":{"internal":"..."}} → "errors.internal".
// Safe to call more than once; only the first call does any work.
func Load(localesFS fs.FS) error {
	loadOnce.Do(func() {
		loaded := make(map[string]map[string]string, len(SupportedLanguages))

		for _, lang := range SupportedLanguages {
			fileName := lang + ".json"

			data, err := fs.ReadFile(localesFS, fileName)
			if err != nil {
				loadErr = fmt.Errorf("failed to read translation file %s: %w", fileName, err)
				return
			}

			var nested map[string]any
			if err := json.Unmarshal(data, &nested); err != nil {
				loadErr = fmt.Errorf("failed to parse translation file %s: %w", fileName, err)
				return
			}

			flat := make(map[string]string)
			flattenMap("", nested, flat)
			loaded[lang] = flat

			slog.Debug("[i18n] loaded translations", "lang", lang, "keys", len(flat))
		}

		translations = loaded
	})

	return loadErr
}

// LoadEmbedded loads the locale files compiled into the binary.
func LoadEmbedded() error {
	sub, err := fs.Sub(EmbeddedLocales, "locales")
	if err != nil {
		return fmt.Errorf("failed to open embedded locales: %w", err)
	}
	return Load(sub)
}

// Localizer translates keys for one language.
type Localizer struct {
	lang string
}

// NewLocalizer returns a Localizer for lang, or for DefaultLanguage if lang is unsupported.
func NewLocalizer(lang string) *Localizer {
	if !isSupported(lang) {
		lang = DefaultLanguage
	}
	return &Localizer{lang: lang}
}

// T returns the text for key. Missing keys fall back to DefaultLanguage,
// then to the key itself.
func (l *Localizer) T(key string) string {
	if msg, ok := translations[l.lang][key]; ok {
		return msg
	}
	if msg, ok := translations[DefaultLanguage][key]; ok {
		return msg
	}
	return key
}

// DetectLocale resolves the request locale from the Accept-Language header and
// the locale cookie. The header wins when present, even if it names an
// unsupported language.
func DetectLocale(acceptLanguage, cookieLocale string) string {
	candidate := firstTwo(acceptLanguage)
	if candidate == "" {
		candidate = firstTwo(cookieLocale)
	}
	if isSupported(candidate) {
		return candidate
	}
	return DefaultLanguage
}

// ─── Context ───

type localeKey struct{}

// WithLocale stores the resolved locale on ctx.
func WithLocale(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, localeKey{}, lang)
}

// FromContext returns the locale stored by WithLocale, or DefaultLanguage.
func FromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(localeKey{}).(string); ok && lang != "" {
		return lang
	}
	return DefaultLanguage
}

// ─── Helpers ───

func firstTwo(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 2 {
		s = s[:2]
	}
	return s
}

func isSupported(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

func flattenMap(prefix string, src map[string]any, dst map[string]string) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case string:
			dst[key] = val
		case map[string]any:
			flattenMap(key, val, dst)
		}
	}
}
