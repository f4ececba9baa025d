// Package repository is the persistence layer. Services depend on the
// interfaces declared here; each interface has SQLite, PostgreSQL and
// in-memory implementations that behave identically.
//
// Conventions shared by every implementation:
//   - "no row" is reported as pkg.ErrNotFound
//   - unique-key conflicts are reported as pkg.ErrAlreadyExists
//   - everything else is wrapped as fmt.Errorf("failed to ...: %w", err)
package repository

import (
	"context"

	"github.com/mandyibene/family-twigs-backend/models"
)

// UserRepository is the credential store.
type UserRepository interface {
	// Create inserts user as given; the caller assigns ID and timestamps.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail looks up the login key. email must already be normalized.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// UpdateProfile applies the non-nil fields of changes and returns the
	// updated user. A pseudo held by another user is ErrAlreadyExists.
	UpdateProfile(ctx context.Context, userID string, changes *models.UpdateProfileRequest) (*models.User, error)
}
