package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mandyibene/family-twigs-backend/database"
	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
)

// SQLiteConn is what the SQLite session store needs: plain queries plus
// transactions for Rotate. *sql.DB satisfies it.
type SQLiteConn interface {
	database.TxQuerier
	database.TxBeginner
}

type sqliteSessionRepo struct {
	db SQLiteConn
}

// NewSQLiteSessionRepo returns the SQLite session store.
func NewSQLiteSessionRepo(db SQLiteConn) SessionRepository {
	return &sqliteSessionRepo{db: db}
}

const sessionColumns = `id, user_id, refresh_token, user_agent, ip, created_at, updated_at, expires_at`

const insertSession = `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func sessionArgs(s *models.Session) []any {
	return []any{
		s.ID, s.UserID, s.RefreshToken, s.UserAgent, s.IP,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(), s.ExpiresAt.UTC(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.RefreshToken, &s.UserAgent, &s.IP,
		&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt,
	)
	return s, err
}

func (r *sqliteSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if _, err := r.db.ExecContext(ctx, insertSession, sessionArgs(session)...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session already exists", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sqliteSessionRepo) GetByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token = ?`, token)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by refresh token: %w", err)
	}
	return s, nil
}

// Rotate consumes the old row and inserts the new one in a single
// transaction.
//
// The DELETE is the claim: it carries the expiry guard and RETURNING, so
// "is this token still live" and "remove it" are one statement, not a
// SELECT followed by a DELETE that another caller could slip between.
// The pool holds one connection, which makes this transaction the only
// writer for its duration. A second Rotate with the same token waits for
// the connection, then finds no row and gets ErrNotFound.
//
// If the INSERT fails the transaction rolls back and the old row survives,
// so a failed rotation never logs the caller out.
func (r *sqliteSessionRepo) Rotate(ctx context.Context, oldToken string, now time.Time, next *models.Session) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var deletedID string
		err := tx.QueryRowContext(ctx,
			`DELETE FROM sessions WHERE refresh_token = ? AND expires_at > ? RETURNING id`,
			oldToken, now.UTC(),
		).Scan(&deletedID)
		if errors.Is(err, sql.ErrNoRows) {
			return pkg.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to consume session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, insertSession, sessionArgs(next)...); err != nil {
			return fmt.Errorf("failed to create rotated session: %w", err)
		}
		return nil
	})
}

func (r *sqliteSessionRepo) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	return r.deleteWhere(ctx, "failed to delete session by token", `DELETE FROM sessions WHERE refresh_token = ?`, token)
}

func (r *sqliteSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.deleteWhere(ctx, "failed to delete session", `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sqliteSessionRepo) DeleteByIDForUser(ctx context.Context, id, userID string) error {
	n, err := r.deleteWhere(ctx, "failed to revoke session",
		`DELETE FROM sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func (r *sqliteSessionRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return r.deleteWhere(ctx, "failed to delete user sessions", `DELETE FROM sessions WHERE user_id = ?`, userID)
}

func (r *sqliteSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, "failed to delete expired sessions", `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
}

func (r *sqliteSessionRepo) ListByUserID(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC`,
		userID, now.UTC(),
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

func (r *sqliteSessionRepo) deleteWhere(ctx context.Context, msg, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", msg, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}
