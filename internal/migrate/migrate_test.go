package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrate struct {
	upErr      error
	downErr    error
	stepsErr   error
	version    uint
	dirty      bool
	versionErr error
	forced     int
	steps      int
	srcErr     error
	dbErr      error
}

func (f *fakeMigrate) Up() error   { return f.upErr }
func (f *fakeMigrate) Down() error { return f.downErr }
func (f *fakeMigrate) Steps(n int) error {
	f.steps = n
	return f.stepsErr
}
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(v int) error {
	f.forced = v
	return nil
}
func (f *fakeMigrate) Close() (error, error) { return f.srcErr, f.dbErr }

func TestDriverURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@h:5432/db":   "pgx5://u:p@h:5432/db",
		"postgresql://u:p@h/db":      "pgx5://u:p@h/db",
		"pgx5://u:p@h/db":            "pgx5://u:p@h/db",
		"host=localhost dbname=test": "host=localhost dbname=test",
	}
	for in, want := range cases {
		assert.Equal(t, want, driverURL(in))
	}
}

func TestRunner_NoChangeIsNotAnError(t *testing.T) {
	r := &Runner{m: &fakeMigrate{upErr: migrate.ErrNoChange, downErr: migrate.ErrNoChange, stepsErr: migrate.ErrNoChange}}
	assert.NoError(t, r.Up())
	assert.NoError(t, r.Down())
	assert.NoError(t, r.Steps(1))
}

func TestRunner_PropagatesFailures(t *testing.T) {
	boom := errors.New("boom")
	r := &Runner{m: &fakeMigrate{upErr: boom, downErr: boom, stepsErr: boom, versionErr: boom}}
	assert.ErrorIs(t, r.Up(), boom)
	assert.ErrorIs(t, r.Down(), boom)
	assert.ErrorIs(t, r.Steps(-1), boom)
	_, _, err := r.Version()
	assert.ErrorIs(t, err, boom)
}

func TestRunner_Version(t *testing.T) {
	r := &Runner{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
	v, dirty, err := r.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	r = &Runner{m: &fakeMigrate{version: 2, dirty: true}}
	v, dirty, err = r.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)
}

func TestRunner_Force(t *testing.T) {
	fake := &fakeMigrate{}
	r := &Runner{m: fake}
	assert.Error(t, r.Force(-1))
	require.NoError(t, r.Force(1))
	assert.Equal(t, 1, fake.forced)
}

func TestRunner_Close(t *testing.T) {
	assert.NoError(t, (&Runner{m: &fakeMigrate{}}).Close())

	src, db := errors.New("src"), errors.New("db")
	err := (&Runner{m: &fakeMigrate{srcErr: src, dbErr: db}}).Close()
	assert.ErrorIs(t, err, src)
	assert.ErrorIs(t, err, db)
}

func TestVersions(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestCatalogMigrationSeedsEveryPermission(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000002_permission_catalog.up.sql")
	require.NoError(t, err)
	for _, name := range []string{
		"manage_users", "view_users", "assign_roles", "manage_roles",
		"create_survey", "edit_survey", "delete_survey", "view_survey",
		"view_results", "export_results", "share_survey",
	} {
		assert.Contains(t, string(data), "'"+name+"'")
	}
}
