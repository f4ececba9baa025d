package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/repository"
)

// bcryptCost is the work factor for new hashes. Tests lower it.
var bcryptCost = 12

var (
	errUserExists         = pkg.NewCodedError(pkg.ErrAlreadyExists, "USER_ALREADY_EXISTS", "errors.userExists")
	errInvalidCredentials = pkg.NewCodedError(pkg.ErrUnauthorized, "INVALID_CREDENTIALS", "errors.invalidCredentials")
	errIncorrectPassword  = pkg.NewCodedError(pkg.ErrUnauthorized, "INCORRECT_PASSWORD", "errors.incorrectPassword")
	errUserNotFound       = pkg.NewCodedError(pkg.ErrNotFound, "USER_NOT_FOUND", "errors.userNotFound")
	errPseudoTaken        = pkg.NewCodedError(pkg.ErrAlreadyExists, "PSEUDO_TAKEN", "errors.pseudoTaken")
)

// AuthService covers the credential flows around the session core:
// registration, password login, password change and the current user.
// Session issuance itself is delegated to SessionManager.
type AuthService interface {
	Register(ctx context.Context, req *models.RegisterRequest, meta models.SessionMeta) (*models.TokenPair, error)
	// Login fails with the same error for an unknown email and a wrong password.
	Login(ctx context.Context, req *models.LoginRequest, meta models.SessionMeta) (*models.TokenPair, error)
	ChangePassword(ctx context.Context, userID string, req *models.UpdatePasswordRequest) error
	Me(ctx context.Context, userID string) (*models.User, error)
	// UpdateProfile changes the optional profile fields. A pseudo already
	// held by another user is rejected with PSEUDO_TAKEN.
	UpdateProfile(ctx context.Context, userID string, req *models.UpdateProfileRequest) (*models.User, error)
}

type authService struct {
	users    repository.UserRepository
	sessions SessionManager
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(
	users repository.UserRepository,
	sessions SessionManager,
	logger *slog.Logger,
	storeTimeout time.Duration,
	now func() time.Time,
) AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &authService{
		users:    users,
		sessions: sessions,
		logger:   logger,
		timeout:  storeTimeout,
		now:      now,
	}
}

func (s *authService) Register(ctx context.Context, req *models.RegisterRequest, meta models.SessionMeta) (*models.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, s.internal("register", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    &req.FirstName,
		LastName:     &req.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sctx, cancel := s.storeCtx(ctx)
	err = s.users.Create(sctx, user)
	cancel()
	if errors.Is(err, pkg.ErrAlreadyExists) {
		return nil, errUserExists
	}
	if err != nil {
		return nil, s.internal("register", err)
	}

	s.logger.Info("[auth] user registered", "user_id", user.ID)
	return s.sessions.IssueSession(ctx, user.ID, meta)
}

func (s *authService) Login(ctx context.Context, req *models.LoginRequest, meta models.SessionMeta) (*models.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	sctx, cancel := s.storeCtx(ctx)
	user, err := s.users.GetByEmail(sctx, req.Email)
	cancel()
	if errors.Is(err, pkg.ErrNotFound) {
		// Spend the same bcrypt time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(req.Password))
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, s.internal("login", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	return s.sessions.IssueSession(ctx, user.ID, meta)
}

func (s *authService) ChangePassword(ctx context.Context, userID string, req *models.UpdatePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	user, err := s.lookup(ctx, "change_password", userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return errIncorrectPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		return s.internal("change_password", err, "user_id", userID)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	err = s.users.UpdatePassword(sctx, userID, string(hash))
	if errors.Is(err, pkg.ErrNotFound) {
		return errUserNotFound
	}
	if err != nil {
		return s.internal("change_password", err, "user_id", userID)
	}

	s.logger.Info("[auth] password changed", "user_id", userID)
	return nil
}

func (s *authService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.lookup(ctx, "me", userID)
}

func (s *authService) UpdateProfile(ctx context.Context, userID string, req *models.UpdateProfileRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.UpdateProfile(sctx, userID, req)
	switch {
	case errors.Is(err, pkg.ErrAlreadyExists):
		return nil, errPseudoTaken
	case errors.Is(err, pkg.ErrNotFound):
		return nil, errUserNotFound
	case err != nil:
		return nil, s.internal("update_profile", err, "user_id", userID)
	}

	s.logger.Info("[auth] profile updated", "user_id", userID)
	return user, nil
}

// ─── Helpers ───

func (s *authService) lookup(ctx context.Context, op, userID string) (*models.User, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByID(sctx, userID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, s.internal(op, err, "user_id", userID)
	}
	return user, nil
}

// dummy is a hash to compare against when the email is unknown.
func (s *authService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	})
	return s.dummyHash
}

func (s *authService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *authService) internal(op string, err error, attrs ...any) error {
	s.logger.Error("[auth] operation failed", append([]any{"op", op, "err", err}, attrs...)...)
	return fmt.Errorf("%w: %s failed", pkg.ErrInternal, op)
}
