package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/obs"
)

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap-tokens",
		Short: "Delete revoked and expired refresh tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			store, closer, err := a.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			tokens, err := auth.NewTokenService(store, cfg.TokenConfig(), auth.WithTokenLogger(obs.Logger()))
			if err != nil {
				return err
			}
			n, err := tokens.Reap(cmd.Context())
			if err != nil {
				return oops.Code("REAP_FAILED").Wrap(err)
			}
			cmd.Printf("Deleted %d refresh tokens\n", n)
			return nil
		},
	}
}
