package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/auth/authtest"
	"surveyhub.org/internal/config"
)

type fakeMigrator struct {
	calls   []string
	version uint
	dirty   bool
	err     error
	closed  bool
}

func (f *fakeMigrator) Up() error         { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrator) Down() error       { f.calls = append(f.calls, "down"); return f.err }
func (f *fakeMigrator) Steps(n int) error { f.calls = append(f.calls, "steps"); return f.err }
func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, f.err
}
func (f *fakeMigrator) Force(v int) error { f.calls = append(f.calls, "force"); return f.err }
func (f *fakeMigrator) Close() error      { f.closed = true; return nil }

type testApp struct {
	*app
	store    *authtest.MemStore
	migrator *fakeMigrator
}

func newTestApp() *testApp {
	cfg := config.Config{
		DatabaseURL:   "postgres://surveyhub@localhost/surveyhub",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		LogLevel:      "error",
	}
	ta := &testApp{store: authtest.NewMemStore(), migrator: &fakeMigrator{}}
	ta.app = &app{
		loadConfig: func() (config.Config, error) { return cfg, nil },
		openStore: func(context.Context, config.Config) (auth.Store, io.Closer, error) {
			return ta.store, io.NopCloser(nil), nil
		},
		openMigrator: func(string) (migrator, error) { return ta.migrator, nil },
	}
	return ta
}

func execute(a *app, stdin string, args ...string) (string, error) {
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "bootstrap-org", "reap-tokens"})
}

func TestMigrate_UpAndStatus(t *testing.T) {
	ta := newTestApp()

	out, err := execute(ta.app, "", "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations completed successfully")
	assert.Equal(t, []string{"up"}, ta.migrator.calls)
	assert.True(t, ta.migrator.closed)

	ta.migrator.version = 1
	out, err = execute(ta.app, "", "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "version: 1 (latest 2)")
	assert.Contains(t, out, "pending migrations")

	ta.migrator.dirty = true
	out, err = execute(ta.app, "", "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "dirty")
}

func TestMigrate_DownRequiresConfirmation(t *testing.T) {
	ta := newTestApp()

	_, err := execute(ta.app, "", "migrate", "down")
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIRMATION_REQUIRED", oopsErr.Code())
	assert.Empty(t, ta.migrator.calls)

	_, err = execute(ta.app, "", "migrate", "down", "--yes", "--steps", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"steps"}, ta.migrator.calls)
}

func TestMigrate_ForceRejectsNonNumeric(t *testing.T) {
	ta := newTestApp()

	_, err := execute(ta.app, "", "migrate", "force", "latest")
	require.Error(t, err)
	assert.Empty(t, ta.migrator.calls)

	_, err = execute(ta.app, "", "migrate", "force", "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"force"}, ta.migrator.calls)
}

func TestMigrate_MissingDatabaseURL(t *testing.T) {
	ta := newTestApp()
	ta.loadConfig = func() (config.Config, error) { return config.Config{LogLevel: "error"}, nil }

	_, err := execute(ta.app, "", "migrate", "up")
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "CONFIG_INVALID", oopsErr.Code())
}

func TestMigrate_PropagatesFailure(t *testing.T) {
	ta := newTestApp()
	ta.migrator.err = errors.New("dirty database")

	_, err := execute(ta.app, "", "migrate", "up")
	require.ErrorContains(t, err, "dirty database")
	assert.True(t, ta.migrator.closed)
}

func TestBootstrapOrg_FromFlags(t *testing.T) {
	ta := newTestApp()

	out, err := execute(ta.app, "", "bootstrap-org",
		"--name", "Acme Research",
		"--subdomain", "acme",
		"--admin-name", "Ada Admin",
		"--admin-email", "ada@acme.test",
		"--admin-password", "correct-horse",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Research")
	assert.Contains(t, out, "acme")
	assert.Contains(t, out, "ada@acme.test")
	assert.Contains(t, out, "Admin, Survey Creator, Viewer")
	assert.NotContains(t, out, "correct-horse")

	counts := ta.store.Counts()
	assert.Equal(t, 1, counts.Organizations)
	assert.Equal(t, 1, counts.Users)
}

func TestBootstrapOrg_Prompts(t *testing.T) {
	ta := newTestApp()

	out, err := execute(ta.app, "Acme Research\nacme\nAda Admin\nada@acme.test\ncorrect-horse\n", "bootstrap-org")
	require.NoError(t, err)
	assert.Contains(t, out, "Organization name: ")
	assert.Contains(t, out, "Admin password: ")
	assert.Contains(t, out, "ada@acme.test")
	assert.NotContains(t, out, "correct-horse")
}

func TestBootstrapOrg_InputEndsEarly(t *testing.T) {
	ta := newTestApp()

	_, err := execute(ta.app, "Acme Research\n", "bootstrap-org")
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "INPUT_MISSING", oopsErr.Code())
	assert.Equal(t, 0, ta.store.Counts().Organizations)
}

func TestBootstrapOrg_Validation(t *testing.T) {
	ta := newTestApp()

	_, err := execute(ta.app, "", "bootstrap-org",
		"--name", "Acme", "--subdomain", "acme",
		"--admin-name", "Ada", "--admin-email", "ada@acme.test",
		"--admin-password", "short",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrValidation)
	assert.Equal(t, 0, ta.store.Counts().Organizations)
}

func TestReapTokens(t *testing.T) {
	ta := newTestApp()
	ctx := context.Background()

	_, err := execute(ta.app, "", "bootstrap-org",
		"--name", "Acme", "--subdomain", "acme",
		"--admin-name", "Ada", "--admin-email", "ada@acme.test",
		"--admin-password", "correct-horse",
	)
	require.NoError(t, err)
	admin, err := ta.store.Users(ctx).FindByEmail(ctx, "ada@acme.test")
	require.NoError(t, err)

	now := time.Now().UTC()
	for _, tok := range []auth.RefreshToken{
		{Token: "live", UserID: admin.ID, ExpiresAt: now.Add(time.Hour)},
		{Token: "expired", UserID: admin.ID, ExpiresAt: now.Add(-time.Hour)},
		{Token: "revoked", UserID: admin.ID, ExpiresAt: now.Add(time.Hour), Revoked: true},
	} {
		require.NoError(t, ta.store.RefreshTokens(ctx).Create(ctx, &tok))
	}

	out, err := execute(ta.app, "", "reap-tokens")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 refresh tokens")

	_, err = ta.store.RefreshTokens(ctx).Find(ctx, "live")
	assert.NoError(t, err)
}

func TestReapTokens_RequiresSecrets(t *testing.T) {
	ta := newTestApp()
	ta.loadConfig = func() (config.Config, error) {
		return config.Config{DatabaseURL: "postgres://localhost/surveyhub", LogLevel: "error"}, nil
	}

	_, err := execute(ta.app, "", "reap-tokens")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}
