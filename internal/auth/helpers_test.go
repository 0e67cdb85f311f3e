package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/auth/authtest"
)

const (
	accessSecret  = "access-secret-for-tests"
	refreshSecret = "refresh-secret-for-tests"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *authtest.MemStore
	clock    *fakeClock
	hasher   auth.PasswordHasher
	tokens   *auth.TokenService
	resolver *auth.PermissionResolver
	session  *auth.Session
	boot     *auth.Bootstrapper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := authtest.NewMemStore()
	clock := newFakeClock()
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	tokens, err := auth.NewTokenService(store, auth.TokenConfig{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
	}, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	resolver := auth.NewPermissionResolver(store)
	return &fixture{
		store:    store,
		clock:    clock,
		hasher:   hasher,
		tokens:   tokens,
		resolver: resolver,
		session:  auth.NewSession(store, tokens, resolver, auth.WithHasher(hasher), auth.WithSessionClock(clock.Now)),
		boot:     auth.NewBootstrapper(store, auth.WithBootstrapHasher(hasher), auth.WithBootstrapClock(clock.Now)),
	}
}

func (f *fixture) bootstrap(t *testing.T, subdomain, adminEmail string) *auth.BootstrapResult {
	t.Helper()
	res, err := f.boot.Bootstrap(context.Background(), auth.BootstrapInput{
		OrganizationName: "Org " + subdomain,
		Subdomain:        subdomain,
		AdminName:        "Admin " + subdomain,
		AdminEmail:       adminEmail,
		AdminPassword:    "admin-password",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) register(t *testing.T, orgID, email string) (*auth.User, auth.TokenPair) {
	t.Helper()
	user, pair, err := f.session.Register(context.Background(), auth.RegisterInput{
		Email:          email,
		Password:       "correct-horse",
		FullName:       "Test User",
		OrganizationID: orgID,
	})
	require.NoError(t, err)
	return user, pair
}

type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}
