package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	inventoryservice "github.com/jcmexdev/storefront-integrity/internal/inventory-service"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/identity"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute product stock totals from their variants",
		Long: `Product stock totals mirror the sum of their variants on a best-effort
basis and can drift after partial failures. reconcile rebuilds every
product total from its variants.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *sqlite.Store) error {
				n, err := inventoryservice.NewLedger(store).Reconcile(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d products\n", n)
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		email   string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for calling the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := identity.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer).
				Issue(identity.Identity{UserID: subject, Email: email, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "user id placed in the token")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&role, "role", identity.RoleAdmin, "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
