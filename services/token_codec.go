// Package services holds the business logic between handlers and repositories.
//
// Services never see http.Request or http.ResponseWriter, and never run SQL;
// they take domain values, call repository interfaces and return domain
// values or pkg sentinel errors.
package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/models"
)

// TokenCodec mints and verifies the two token kinds.
//
// Verify has a single failure outcome: a bad signature, a wrong algorithm,
// an expired token, a foreign issuer and a token of the other kind all
// look the same to the caller.
type TokenCodec interface {
	IssueAccess(userID string) (token string, expiresAt time.Time, err error)
	IssueRefresh(userID string) (token string, expiresAt time.Time, err error)
	Verify(token string, kind models.TokenKind) (*models.TokenClaims, bool)
}

type jwtCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// NewTokenCodec builds an HS256 codec from cfg. now may be nil (time.Now).
func NewTokenCodec(cfg config.AuthConfig, now func() time.Time) (TokenCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token codec: both secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("token codec: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token codec: TTLs must be positive")
	}
	if now == nil {
		now = time.Now
	}

	return &jwtCodec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           now,
	}, nil
}

func (c *jwtCodec) IssueAccess(userID string) (string, time.Time, error) {
	return c.issue(userID, models.TokenKindAccess, "")
}

// IssueRefresh adds a random jti so tokens minted in the same second differ.
func (c *jwtCodec) IssueRefresh(userID string) (string, time.Time, error) {
	return c.issue(userID, models.TokenKindRefresh, uuid.NewString())
}

func (c *jwtCodec) issue(userID string, kind models.TokenKind, jti string) (string, time.Time, error) {
	secret, ttl := c.keyFor(kind)
	now := c.now()
	expiresAt := now.Add(ttl)

	claims := &models.TokenClaims{
		UserID: userID,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

func (c *jwtCodec) Verify(token string, kind models.TokenKind) (*models.TokenClaims, bool) {
	if token == "" || (kind != models.TokenKindAccess && kind != models.TokenKindRefresh) {
		return nil, false
	}
	secret, _ := c.keyFor(kind)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &models.TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, false
	}

	claims, ok := parsed.Claims.(*models.TokenClaims)
	if !ok || claims.Type != kind || claims.UserID == "" {
		return nil, false
	}
	return claims, true
}

func (c *jwtCodec) keyFor(kind models.TokenKind) ([]byte, time.Duration) {
	if kind == models.TokenKindRefresh {
		return c.refreshSecret, c.refreshTTL
	}
	return c.accessSecret, c.accessTTL
}
