package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
)

type postgresUserRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepo returns the PostgreSQL credential store.
func NewPostgresUserRepo(pool *pgxpool.Pool) UserRepository {
	return &postgresUserRepo{pool: pool}
}

func (r *postgresUserRepo) Create(ctx context.Context, user *models.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName,
		user.Pseudo, user.Lang,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("%w: email already in use", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *postgresUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *postgresUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *postgresUserRepo) getOne(ctx context.Context, query, arg string) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *postgresUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *postgresUserRepo) UpdateProfile(ctx context.Context, userID string, changes *models.UpdateProfileRequest) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			first_name = COALESCE($1, first_name),
			last_name  = COALESCE($2, last_name),
			pseudo     = COALESCE($3, pseudo),
			lang       = COALESCE($4, lang),
			updated_at = $5
		WHERE id = $6
		RETURNING `+userColumns,
		changes.FirstName, changes.LastName, changes.Pseudo, changes.Lang,
		time.Now().UTC(), userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, fmt.Errorf("%w: pseudo already in use", pkg.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// isPgUniqueViolation detects SQLSTATE 23505.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
