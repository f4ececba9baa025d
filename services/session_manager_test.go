package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/pkg"
	"github.com/mandyibene/family-twigs-backend/repository"
)

var meta = models.SessionMeta{UserAgent: "go-test", IP: "127.0.0.1"}

func TestIssueSession_PersistsRow(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t, "alice@example.com")

	pair := env.issue(t, userID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, int64(3600), pair.RefreshExpiresIn)

	row, err := env.sessions.GetByRefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, row.ID)
	assert.Equal(t, userID, row.UserID)
	assert.True(t, env.clock.Now().Add(time.Hour).Equal(row.ExpiresAt))
	require.NotNil(t, row.UserAgent)
	assert.Equal(t, "go-test", *row.UserAgent)

	got, err := env.manager.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestRefresh_RotatesAndSpendsToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "alice@example.com")
	first := env.issue(t, userID)

	env.clock.Advance(time.Second)
	second, err := env.manager.Refresh(ctx, first.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	_, err = env.manager.Refresh(ctx, first.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = env.sessions.GetByRefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	third, err := env.manager.Refresh(ctx, second.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, third.RefreshToken)
}

func TestRefresh_ExpiredRowNotYetReaped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.addUser(t, "alice@example.com")

	// Token still verifies, but its row expired a second ago.
	token, _, err := env.codec.IssueRefresh(userID)
	require.NoError(t, err)
	now := env.clock.Now()
	row := models.NewSession(uuid.NewString(), userID, token, meta, now.Add(-time.Hour), now.Add(-time.Second))
	require.NoError(t, env.sessions.Create(ctx, row))

	_, err = env.manager.Refresh(ctx, token, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	// The row is still there; only the reaper removes it.
	_, err = env.sessions.GetByRefreshToken(ctx, token)
	assert.NoError(t, err)
}

func TestRefresh_AfterRefreshTTL(t *testing.T) {
	env := newTestEnv(t)
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	env.clock.Advance(time.Hour)
	_, err := env.manager.Refresh(context.Background(), pair.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestRefresh_RejectsWrongInputs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	for name, token := range map[string]string{
		"access token": pair.AccessToken,
		"empty":        "",
		"garbage":      "abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.manager.Refresh(ctx, token, meta)
			assert.ErrorIs(t, err, pkg.ErrUnauthorized)
		})
	}

	t.Run("valid signature without row", func(t *testing.T) {
		orphan, _, err := env.codec.IssueRefresh("someone")
		require.NoError(t, err)
		_, err = env.manager.Refresh(ctx, orphan, meta)
		assert.ErrorIs(t, err, pkg.ErrUnauthorized)
	})
}

func TestRefresh_UserGone(t *testing.T) {
	env := newTestEnv(t)
	pair := env.issue(t, "user-that-was-never-stored")

	_, err := env.manager.Refresh(context.Background(), pair.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	const workers = 16
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		unauthorized atomic.Int32
		start        = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.manager.Refresh(context.Background(), pair.RefreshToken, meta)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, pkg.ErrUnauthorized):
				unauthorized.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), unauthorized.Load())
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	env.manager.Logout(ctx, "")
	env.manager.Logout(ctx, "not-a-token")
	env.manager.Logout(ctx, pair.RefreshToken)

	_, err := env.manager.Refresh(ctx, pair.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	// Logging out twice is fine.
	env.manager.Logout(ctx, pair.RefreshToken)
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(t, "alice@example.com")
	bob := env.addUser(t, "bob@example.com")

	a1 := env.issue(t, alice)
	a2 := env.issue(t, alice)
	b1 := env.issue(t, bob)

	n, err := env.manager.LogoutAll(ctx, a1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = env.manager.Refresh(ctx, a2.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = env.manager.LogoutAll(ctx, a1.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = env.manager.Refresh(ctx, b1.RefreshToken, meta)
	assert.NoError(t, err)
}

func TestLogoutAll_RequiresLiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(t, "alice@example.com")
	other := env.issue(t, alice)

	token, _, err := env.codec.IssueRefresh(alice)
	require.NoError(t, err)

	_, err = env.manager.LogoutAll(ctx, token)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	_, err = env.manager.LogoutAll(ctx, other.AccessToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	// Nothing was removed by the failed attempts.
	_, err = env.sessions.GetByRefreshToken(ctx, other.RefreshToken)
	assert.NoError(t, err)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(t, "alice@example.com")

	older := env.issue(t, alice)
	env.clock.Advance(time.Minute)
	newer := env.issue(t, alice)
	env.issue(t, env.addUser(t, "bob@example.com"))

	list, err := env.manager.ListSessions(ctx, alice, newer.RefreshToken)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.SessionID, list[0].ID)
	assert.True(t, list[0].IsCurrent)
	assert.Equal(t, older.SessionID, list[1].ID)
	assert.False(t, list[1].IsCurrent)

	env.clock.Advance(time.Hour - 30*time.Second)
	list, err = env.manager.ListSessions(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, newer.SessionID, list[0].ID)
	assert.False(t, list[0].IsCurrent)
}

func TestListSessions_EmptyIsNotNil(t *testing.T) {
	env := newTestEnv(t)

	list, err := env.manager.ListSessions(context.Background(), "nobody", "")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRevokeSession_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(t, "alice@example.com")
	mallory := env.addUser(t, "mallory@example.com")
	victim := env.issue(t, alice)

	err := env.manager.RevokeSession(ctx, mallory, victim.SessionID)
	require.ErrorIs(t, err, pkg.ErrNotFound)
	var coded *pkg.CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "SESSION_NOT_FOUND", coded.Code)

	_, err = env.sessions.GetByRefreshToken(ctx, victim.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, env.manager.RevokeSession(ctx, alice, victim.SessionID))
	_, err = env.manager.Refresh(ctx, victim.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	assert.ErrorIs(t, env.manager.RevokeSession(ctx, alice, victim.SessionID), pkg.ErrNotFound)
	assert.ErrorIs(t, env.manager.RevokeSession(ctx, alice, ""), pkg.ErrNotFound)
}

func TestValidateAccess_RejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	_, err := env.manager.ValidateAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

// brokenSessions fails every lookup with a driver-level error.
type brokenSessions struct {
	repository.SessionRepository
}

var errDriver = errors.New("driver: connection reset by peer")

func (brokenSessions) GetByRefreshToken(context.Context, string) (*models.Session, error) {
	return nil, errDriver
}

func (brokenSessions) ListByUserID(context.Context, string, time.Time) ([]models.Session, error) {
	return nil, errDriver
}

func (brokenSessions) DeleteByRefreshToken(context.Context, string) (int64, error) {
	return 0, errDriver
}

func TestStoreFailuresBecomeInternal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	manager := NewSessionManager(env.cfg, env.codec, brokenSessions{env.sessions}, env.users, discardLogger(), nil, env.clock.Now)

	_, err := manager.Refresh(ctx, pair.RefreshToken, meta)
	require.ErrorIs(t, err, pkg.ErrInternal)
	assert.NotErrorIs(t, err, errDriver)
	assert.NotContains(t, err.Error(), "connection reset")

	_, err = manager.ListSessions(ctx, "anyone", "")
	assert.ErrorIs(t, err, pkg.ErrInternal)

	_, err = manager.LogoutAll(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, pkg.ErrInternal)

	// Logout swallows the failure.
	manager.Logout(ctx, pair.RefreshToken)
}

func TestCancelledContextIsInternal(t *testing.T) {
	env := newTestEnv(t)
	pair := env.issue(t, env.addUser(t, "alice@example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.manager.Refresh(ctx, pair.RefreshToken, meta)
	assert.ErrorIs(t, err, pkg.ErrInternal)
}
