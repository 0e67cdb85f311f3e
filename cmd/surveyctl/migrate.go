package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"surveyhub.org/internal/migrate"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withMigrator(func(m migrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		newMigrateDownCmd(a),
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withMigrator(func(m migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					available, err := migrate.Versions()
					if err != nil {
						return err
					}
					latest := uint(0)
					if len(available) > 0 {
						latest = available[len(available)-1]
					}
					cmd.Printf("version: %d (latest %d)\n", version, latest)
					if dirty {
						cmd.Println("state: dirty, fix the failed migration and run `surveyctl migrate force`")
					} else if version < latest {
						cmd.Println("state: pending migrations")
					} else {
						cmd.Println("state: up to date")
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
				}
				return a.withMigrator(func(m migrator) error {
					if err := m.Force(v); err != nil {
						return err
					}
					cmd.Printf("Forced version %d\n", v)
					return nil
				})
			},
		},
	)
	return cmd
}

func newMigrateDownCmd(a *app) *cobra.Command {
	var (
		yes   bool
		steps int
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (all of them unless --steps is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops data; pass --yes to confirm")
			}
			return a.withMigrator(func(m migrator) error {
				var err error
				if steps > 0 {
					err = m.Steps(-steps)
				} else {
					err = m.Down()
				}
				if err != nil {
					return err
				}
				cmd.Println("Rollback completed")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back")
	return cmd
}

func (a *app) withMigrator(fn func(m migrator) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	m, err := a.openMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}
