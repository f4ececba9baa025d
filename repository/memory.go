package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
)

// ─── Users ───

type memoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

// NewMemoryUserRepo returns a process-local credential store for tests and
// local development.
func NewMemoryUserRepo() UserRepository {
	return &memoryUserRepo{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

func (r *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return fmt.Errorf("%w: email already in use", pkg.ErrAlreadyExists)
	}
	if _, taken := r.byID[user.ID]; taken {
		return fmt.Errorf("%w: user id already in use", pkg.ErrAlreadyExists)
	}
	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	return &u, nil
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return pkg.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return nil
}

func (r *memoryUserRepo) UpdateProfile(ctx context.Context, userID string, changes *models.UpdateProfileRequest) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return nil, pkg.ErrNotFound
	}

	if changes.Pseudo != nil {
		for id, other := range r.byID {
			if id != userID && other.Pseudo != nil && *other.Pseudo == *changes.Pseudo {
				return nil, fmt.Errorf("%w: pseudo already in use", pkg.ErrAlreadyExists)
			}
		}
	}

	set := func(dst **string, v *string) {
		if v != nil {
			s := *v
			*dst = &s
		}
	}
	set(&u.FirstName, changes.FirstName)
	set(&u.LastName, changes.LastName)
	set(&u.Pseudo, changes.Pseudo)
	set(&u.Lang, changes.Lang)
	u.UpdatedAt = time.Now().UTC()

	r.byID[userID] = u
	return &u, nil
}

// ─── Sessions ───

type memorySessionRepo struct {
	mu      sync.Mutex
	byID    map[string]models.Session
	byToken map[string]string
}

// NewMemorySessionRepo returns a process-local session store. All operations,
// Rotate included, run under one lock.
func NewMemorySessionRepo() SessionRepository {
	return &memorySessionRepo{
		byID:    make(map[string]models.Session),
		byToken: make(map[string]string),
	}
}

func (r *memorySessionRepo) Create(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(session)
}

func (r *memorySessionRepo) insertLocked(s *models.Session) error {
	if _, taken := r.byToken[s.RefreshToken]; taken {
		return fmt.Errorf("%w: session already exists", pkg.ErrAlreadyExists)
	}
	if _, taken := r.byID[s.ID]; taken {
		return fmt.Errorf("%w: session already exists", pkg.ErrAlreadyExists)
	}
	r.byID[s.ID] = *s
	r.byToken[s.RefreshToken] = s.ID
	return nil
}

func (r *memorySessionRepo) deleteLocked(id string) {
	if s, ok := r.byID[id]; ok {
		delete(r.byToken, s.RefreshToken)
		delete(r.byID, id)
	}
}

func (r *memorySessionRepo) GetByRefreshToken(ctx context.Context, token string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get session by refresh token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, pkg.ErrNotFound
	}
	s := r.byID[id]
	return &s, nil
}

// Rotate checks, deletes and inserts under r.mu. Every other method takes
// the same lock, so nothing observes the state between the delete and the
// insert. The duplicate check on next runs before the delete, so a
// rejected insert leaves the old session in place.
func (r *memorySessionRepo) Rotate(ctx context.Context, oldToken string, now time.Time, next *models.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to consume session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[oldToken]
	s := r.byID[id]
	if !ok || !s.IsLive(now) {
		return pkg.ErrNotFound
	}
	if _, taken := r.byToken[next.RefreshToken]; taken {
		return fmt.Errorf("failed to create rotated session: %w", pkg.ErrAlreadyExists)
	}

	r.deleteLocked(id)
	return r.insertLocked(next)
}

func (r *memorySessionRepo) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("failed to delete session by token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return 0, nil
	}
	r.deleteLocked(id)
	return 1, nil
}

func (r *memorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(id)
	return nil
}

func (r *memorySessionRepo) DeleteByIDForUser(ctx context.Context, id, userID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.UserID != userID {
		return pkg.ErrNotFound
	}
	r.deleteLocked(id)
	return nil
}

func (r *memorySessionRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return r.deleteFunc(ctx, "failed to delete user sessions", func(s models.Session) bool {
		return s.UserID == userID
	})
}

func (r *memorySessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteFunc(ctx, "failed to delete expired sessions", func(s models.Session) bool {
		return !s.IsLive(now)
	})
}

func (r *memorySessionRepo) deleteFunc(ctx context.Context, msg string, match func(models.Session) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", msg, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.byID {
		if match(s) {
			r.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (r *memorySessionRepo) ListByUserID(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []models.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.IsLive(now) {
			sessions = append(sessions, s)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}
