package models

import "github.com/golang-jwt/jwt/v5"

// TokenKind separates access tokens from refresh tokens. Each kind is signed
// with its own secret and carries its kind in the "typ" claim.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenClaims is the JWT payload of both token kinds.
//
// Refresh tokens also set RegisteredClaims.ID (jti) to a random uuid so two
// tokens minted for the same user in the same second still differ.
//
// Defined here rather than in services so middleware and handlers can read it
// without importing the service layer.
type TokenClaims struct {
	UserID string    `json:"user_id"`
	Type   TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login, registration or refresh hands back.
// The refresh token travels only in the refreshToken cookie.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	RefreshExpiresIn int64 // seconds, used for the cookie Max-Age
}
