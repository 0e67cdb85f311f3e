package main

import (
	"context"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/config"
	"surveyhub.org/internal/migrate"
	"surveyhub.org/internal/obs"
	"surveyhub.org/internal/store/pg"
)

type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Close() error
}

// app holds the collaborators commands open on demand.
type app struct {
	loadConfig   func() (config.Config, error)
	openStore    func(ctx context.Context, cfg config.Config) (auth.Store, io.Closer, error)
	openMigrator func(databaseURL string) (migrator, error)
}

func defaultApp() *app {
	return &app{
		loadConfig: config.Load,
		openStore: func(ctx context.Context, cfg config.Config) (auth.Store, io.Closer, error) {
			s, err := pg.Open(cfg.DatabaseURL, cfg.Pool)
			if err != nil {
				return nil, nil, err
			}
			if err := s.Ping(ctx); err != nil {
				_ = s.Close()
				return nil, nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}
			return s, s, nil
		},
		openMigrator: func(databaseURL string) (migrator, error) {
			r, err := migrate.New(databaseURL)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

// config loads configuration and installs the logger.
func (a *app) config() (config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return config.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if _, err := obs.NewLogger(cfg.LogConfig("surveyctl", "")); err != nil {
		return config.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.DatabaseURL == "" {
		return config.Config{}, oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultApp())
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "surveyctl",
		Short:        "SurveyHub operator tool",
		SilenceUsage: true,
	}
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newBootstrapCmd(a))
	cmd.AddCommand(newReapCmd(a))
	return cmd
}
