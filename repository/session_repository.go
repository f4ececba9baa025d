package repository

import (
	"context"
	"time"

	"github.com/mandyibene/family-twigs-backend/models"
)

// SessionRepository stores one row per live refresh token.
//
// "Live" always means expires_at > now for the now passed by the caller; rows
// past their expiry are invisible to Rotate and ListByUserID even before
// DeleteExpired removes them.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// GetByRefreshToken returns the row holding token, expired or not.
	GetByRefreshToken(ctx context.Context, token string) (*models.Session, error)

	// Rotate atomically deletes the live row holding oldToken and inserts next.
	// If no live row holds oldToken (already rotated, logged out, expired)
	// it returns pkg.ErrNotFound and inserts nothing. Of any number of
	// concurrent Rotate calls with the same oldToken at most one succeeds.
	Rotate(ctx context.Context, oldToken string, now time.Time, next *models.Session) error

	// DeleteByRefreshToken removes the row holding token; no row is not an error.
	DeleteByRefreshToken(ctx context.Context, token string) (int64, error)
	// DeleteByID removes one session whatever its owner. Admin and tooling
	// primitive; request handlers go through DeleteByIDForUser.
	DeleteByID(ctx context.Context, id string) error
	// DeleteByIDForUser removes session id only if it belongs to userID,
	// otherwise pkg.ErrNotFound.
	DeleteByIDForUser(ctx context.Context, id, userID string) error
	// DeleteByUserID removes every session of userID and returns the count.
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	// DeleteExpired removes every row with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// ListByUserID returns the live sessions of userID, newest first.
	ListByUserID(ctx context.Context, userID string, now time.Time) ([]models.Session, error)
}
