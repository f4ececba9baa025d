package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/models"
	"github.com/mandyibene/family-twigs-backend/repository"
)

func TestMain(m *testing.M) {
	bcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "family-twigs-test",
		StoreTimeout:  5 * time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv is a session manager over in-memory stores with a controllable clock.
type testEnv struct {
	clock    *fakeClock
	cfg      config.AuthConfig
	codec    TokenCodec
	users    repository.UserRepository
	sessions repository.SessionRepository
	manager  SessionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock()
	cfg := testAuthConfig()
	codec, err := NewTokenCodec(cfg, clock.Now)
	require.NoError(t, err)

	users := repository.NewMemoryUserRepo()
	sessions := repository.NewMemorySessionRepo()

	return &testEnv{
		clock:    clock,
		cfg:      cfg,
		codec:    codec,
		users:    users,
		sessions: sessions,
		manager:  NewSessionManager(cfg, codec, sessions, users, discardLogger(), nil, clock.Now),
	}
}

// addUser stores a user directly and returns its id.
func (e *testEnv) addUser(t *testing.T, email string) string {
	t.Helper()

	now := e.clock.Now()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "unused",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u.ID
}

func (e *testEnv) issue(t *testing.T, userID string) *models.TokenPair {
	t.Helper()

	pair, err := e.manager.IssueSession(context.Background(), userID, models.SessionMeta{UserAgent: "go-test", IP: "127.0.0.1"})
	require.NoError(t, err)
	return pair
}
