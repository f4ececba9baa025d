package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/pkg/metrics"
	"github.com/mandyibene/family-twigs-backend/repository"
)

// SessionManager owns the session lifecycle:
//
//	ACTIVE ─┬─ Refresh ────────→ row replaced (ROTATED)
//	        ├─ Logout ─────────→ row removed (LOGGED_OUT)
//	        ├─ LogoutAll ──────→ every row of the user removed
//	        ├─ RevokeSession ──→ row removed (REVOKED)
//	        └─ expires_at ≤ now → dead; removed by the reaper (EXPIRED)
//
// Every error it returns wraps a pkg sentinel; store and codec errors are
// logged here and never passed up.
type SessionManager interface {
	// IssueSession creates a new session for an authenticated user.
	IssueSession(ctx context.Context, userID string, meta models.SessionMeta) (*models.TokenPair, error)
	// Refresh spends presented and returns a new pair. A token is good for one
	// successful Refresh; every later attempt is Unauthorized.
	Refresh(ctx context.Context, presented string, meta models.SessionMeta) (*models.TokenPair, error)
	// Logout removes the session holding presented. It never fails.
	Logout(ctx context.Context, presented string)
	// LogoutAll removes every session of the user owning presented, which must
	// itself be a live session. Returns the number removed.
	LogoutAll(ctx context.Context, presented string) (int64, error)
	// ListSessions returns userID's live sessions, newest first.
	ListSessions(ctx context.Context, userID, presented string) ([]models.SessionSummary, error)
	// RevokeSession removes sessionID if, and only if, it belongs to userID.
	RevokeSession(ctx context.Context, userID, sessionID string) error
	// ValidateAccess checks an access token and returns its user id.
	ValidateAccess(token string) (string, error)
}

type sessionManager struct {
	cfg      config.AuthConfig
	codec    TokenCodec
	sessions repository.SessionRepository
	users    repository.UserRepository
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSessionManager wires the manager. now may be nil (time.Now); it must be
// the same clock the codec uses.
func NewSessionManager(
	cfg config.AuthConfig,
	codec TokenCodec,
	sessions repository.SessionRepository,
	users repository.UserRepository,
	logger *slog.Logger,
	m *metrics.Metrics,
	now func() time.Time,
) SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &sessionManager{
		cfg:      cfg,
		codec:    codec,
		sessions: sessions,
		users:    users,
		logger:   logger,
		metrics:  m,
		now:      now,
	}
}

var errInvalidRefresh = fmt.Errorf("%w: invalid refresh token", pkg.ErrUnauthorized)

func (s *sessionManager) IssueSession(ctx context.Context, userID string, meta models.SessionMeta) (*models.TokenPair, error) {
	pair, session, err := s.mint(userID, meta)
	if err != nil {
		return nil, s.internal("issue", err, "user_id", userID)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.sessions.Create(sctx, session); err != nil {
		return nil, s.internal("issue", err, "user_id", userID)
	}

	s.metrics.SessionIssued()
	s.logger.Debug("[session] issued", "user_id", userID, "session_id", session.ID)
	return pair, nil
}

func (s *sessionManager) Refresh(ctx context.Context, presented string, meta models.SessionMeta) (*models.TokenPair, error) {
	claims, ok := s.codec.Verify(presented, models.TokenKindRefresh)
	if !ok {
		return nil, s.reject("bad token")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	current, err := s.sessions.GetByRefreshToken(sctx, presented)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, s.reject("no session", "user_id", claims.UserID)
	}
	if err != nil {
		s.metrics.Refresh(metrics.RefreshFailed)
		return nil, s.internal("refresh", err, "user_id", claims.UserID)
	}

	now := s.now()
	if !current.IsLive(now) {
		return nil, s.reject("session expired", "user_id", claims.UserID, "session_id", current.ID)
	}
	if current.UserID != claims.UserID {
		return nil, s.reject("owner mismatch", "user_id", claims.UserID, "session_id", current.ID)
	}

	if _, err := s.users.GetByID(sctx, claims.UserID); err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, s.reject("user gone", "user_id", claims.UserID, "session_id", current.ID)
		}
		s.metrics.Refresh(metrics.RefreshFailed)
		return nil, s.internal("refresh", err, "user_id", claims.UserID, "session_id", current.ID)
	}

	pair, next, err := s.mint(claims.UserID, meta)
	if err != nil {
		s.metrics.Refresh(metrics.RefreshFailed)
		return nil, s.internal("refresh", err, "user_id", claims.UserID)
	}

	// The checks above read the session without holding anything, so two
	// requests presenting the same refresh token can both get this far.
	// Rotate is where they are told apart: the store deletes the old row and
	// inserts the new one atomically, and only one caller can delete it. The
	// other sees NotFound and is treated like any reuse of a spent token.
	// The pair minted for the loser is simply dropped.
	if err := s.sessions.Rotate(sctx, presented, now, next); err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, s.reject("already rotated", "user_id", claims.UserID, "session_id", current.ID)
		}
		s.metrics.Refresh(metrics.RefreshFailed)
		return nil, s.internal("refresh", err, "user_id", claims.UserID, "session_id", current.ID)
	}

	s.metrics.Refresh(metrics.RefreshRotated)
	s.logger.Debug("[session] rotated", "user_id", claims.UserID, "from", current.ID, "to", next.ID)
	return pair, nil
}

func (s *sessionManager) Logout(ctx context.Context, presented string) {
	if presented == "" {
		return
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.sessions.DeleteByRefreshToken(sctx, presented)
	if err != nil {
		s.logger.Error("[session] logout failed", "op", "logout", "err", err)
		return
	}
	s.metrics.Revoked(metrics.RevokeLogout, n)
}

func (s *sessionManager) LogoutAll(ctx context.Context, presented string) (int64, error) {
	claims, ok := s.codec.Verify(presented, models.TokenKindRefresh)
	if !ok {
		return 0, errInvalidRefresh
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	current, err := s.sessions.GetByRefreshToken(sctx, presented)
	if errors.Is(err, pkg.ErrNotFound) {
		return 0, errInvalidRefresh
	}
	if err != nil {
		return 0, s.internal("logout_all", err, "user_id", claims.UserID)
	}
	if !current.IsLive(s.now()) || current.UserID != claims.UserID {
		return 0, errInvalidRefresh
	}

	n, err := s.sessions.DeleteByUserID(sctx, claims.UserID)
	if err != nil {
		return 0, s.internal("logout_all", err, "user_id", claims.UserID)
	}

	s.metrics.Revoked(metrics.RevokeLogoutAll, n)
	s.logger.Info("[session] logged out everywhere", "user_id", claims.UserID, "sessions", n)
	return n, nil
}

func (s *sessionManager) ListSessions(ctx context.Context, userID, presented string) ([]models.SessionSummary, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rows, err := s.sessions.ListByUserID(sctx, userID, s.now())
	if err != nil {
		return nil, s.internal("list_sessions", err, "user_id", userID)
	}

	summaries := make([]models.SessionSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].Summarize(presented))
	}
	return summaries, nil
}

func (s *sessionManager) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return errSessionNotFound
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	err := s.sessions.DeleteByIDForUser(sctx, sessionID, userID)
	if errors.Is(err, pkg.ErrNotFound) {
		return errSessionNotFound
	}
	if err != nil {
		return s.internal("revoke_session", err, "user_id", userID, "session_id", sessionID)
	}

	s.metrics.Revoked(metrics.RevokeSession, 1)
	s.logger.Info("[session] revoked", "user_id", userID, "session_id", sessionID)
	return nil
}

var errSessionNotFound = pkg.NewCodedError(pkg.ErrNotFound, "SESSION_NOT_FOUND", "errors.sessionNotFound")

func (s *sessionManager) ValidateAccess(token string) (string, error) {
	claims, ok := s.codec.Verify(token, models.TokenKindAccess)
	if !ok {
		return "", fmt.Errorf("%w: invalid access token", pkg.ErrUnauthorized)
	}
	return claims.UserID, nil
}

// ─── Helpers ───

// mint creates a token pair and the unsaved session row for its refresh token.
func (s *sessionManager) mint(userID string, meta models.SessionMeta) (*models.TokenPair, *models.Session, error) {
	access, _, err := s.codec.IssueAccess(userID)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return nil, nil, err
	}

	session := models.NewSession(uuid.NewString(), userID, refresh, meta, s.now().UTC(), refreshExp.UTC())
	pair := &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        session.ID,
		RefreshExpiresIn: int64(s.cfg.RefreshTTL / time.Second),
	}
	return pair, session, nil
}

// storeCtx bounds one store round-trip. Deadline and cancellation surface as Internal.
func (s *sessionManager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

func (s *sessionManager) reject(reason string, attrs ...any) error {
	s.metrics.Refresh(metrics.RefreshRejected)
	s.logger.Debug("[session] refresh rejected", append([]any{"reason", reason}, attrs...)...)
	return errInvalidRefresh
}

func (s *sessionManager) internal(op string, err error, attrs ...any) error {
	s.logger.Error("[session] store failure", append([]any{"op", op, "err", err}, attrs...)...)
	return fmt.Errorf("%w: %s failed", pkg.ErrInternal, op)
}
