package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/one-click-apply/internal/server"
	"github.com/jonathan/one-click-apply/internal/store"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Driver != store.DriverPostgres {
				return fmt.Errorf("migrate requires the postgres store driver, got %q", cfg.Store.Driver)
			}
			if err := store.MigrateUp(cmd.Context(), cfg.Store.DSN); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		origin string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a token for external messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			if ttl > 0 {
				cfg.External.TokenTTL.Duration = ttl
			}
			tokens := server.NewTokenService(cfg.External)
			if tokens == nil {
				return fmt.Errorf("external authentication is disabled: set EXTERNAL_JWT_SECRET")
			}
			token, err := tokens.Issue(args[0], origin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "Origin the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, overrides the config")
	return cmd
}
