// Package pg implements the auth repositories on PostgreSQL through
// database/sql and the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/oops"

	"surveyhub.org/internal/auth"
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig mirrors the configuration defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxIdleTime: 30 * time.Second,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL auth.Store. A Store handed to a WithinTx callback
// runs every query on that transaction.
type Store struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

var _ auth.Store = (*Store)(nil)

// Open connects to dsn and applies the pool settings. Non-positive values
// keep the database/sql defaults.
func Open(dsn string, cfg PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping checks connectivity; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Organizations(context.Context) auth.OrganizationStore { return orgRepo{s.q} }
func (s *Store) Users(context.Context) auth.UserStore                 { return userRepo{s.q} }
func (s *Store) Roles(context.Context) auth.RoleStore                 { return roleRepo{s.q} }
func (s *Store) Permissions(context.Context) auth.PermissionStore     { return permRepo{s.q} }
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore { return tokenRepo{s.q} }

// WithinTx runs fn in one transaction. Nested calls join the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.TransactionError(oops.Code("TX_BEGIN_FAILED").Wrap(err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &Store{db: s.db, q: tx, inTx: true}); err != nil {
		return auth.TransactionError(err)
	}
	if err := tx.Commit(); err != nil {
		return auth.TransactionError(oops.Code("TX_COMMIT_FAILED").Wrap(err))
	}
	return nil
}
