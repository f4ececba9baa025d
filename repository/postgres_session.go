package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
)

type postgresSessionRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepo returns the PostgreSQL session store.
func NewPostgresSessionRepo(pool *pgxpool.Pool) SessionRepository {
	return &postgresSessionRepo{pool: pool}
}

const pgInsertSession = `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (r *postgresSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if _, err := r.pool.Exec(ctx, pgInsertSession, sessionArgs(session)...); err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("%w: session already exists", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *postgresSessionRepo) GetByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token = $1`, token)

	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by refresh token: %w", err)
	}
	return s, nil
}

// Rotate relies on the row lock taken by DELETE: a concurrent rotation of the
// same token blocks until this transaction ends, then finds nothing to delete.
// Rotate consumes the old row and inserts the new one in a single
// transaction.
//
// DELETE ... RETURNING takes a row lock on the matching session. A
// concurrent Rotate with the same token blocks on that lock; once the first
// transaction commits, Postgres re-checks the WHERE clause against the
// now-deleted row, matches nothing, and the loser gets ErrNotFound. No
// explicit SELECT FOR UPDATE is needed.
//
// A failed INSERT rolls the DELETE back with it.
func (r *postgresSessionRepo) Rotate(ctx context.Context, oldToken string, now time.Time, next *models.Session) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var deletedID string
		err := tx.QueryRow(ctx,
			`DELETE FROM sessions WHERE refresh_token = $1 AND expires_at > $2 RETURNING id`,
			oldToken, now,
		).Scan(&deletedID)
		if errors.Is(err, pgx.ErrNoRows) {
			return pkg.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to consume session: %w", err)
		}

		if _, err := tx.Exec(ctx, pgInsertSession, sessionArgs(next)...); err != nil {
			return fmt.Errorf("failed to create rotated session: %w", err)
		}
		return nil
	})
}

func (r *postgresSessionRepo) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	return r.deleteWhere(ctx, "failed to delete session by token", `DELETE FROM sessions WHERE refresh_token = $1`, token)
}

func (r *postgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.deleteWhere(ctx, "failed to delete session", `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *postgresSessionRepo) DeleteByIDForUser(ctx context.Context, id, userID string) error {
	n, err := r.deleteWhere(ctx, "failed to revoke session",
		`DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *postgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return r.deleteWhere(ctx, "failed to delete user sessions", `DELETE FROM sessions WHERE user_id = $1`, userID)
}

func (r *postgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, "failed to delete expired sessions", `DELETE FROM sessions WHERE expires_at <= $1`, now)
}

func (r *postgresSessionRepo) ListByUserID(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC, id DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *postgresSessionRepo) deleteWhere(ctx context.Context, msg, query string, args ...any) (int64, error) {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", msg, err)
	}
	return tag.RowsAffected(), nil
}
