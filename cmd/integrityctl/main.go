package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/config"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/telemetry"
	"github.com/jcmexdev/storefront-integrity/internal/storage/sqlite"
)

var Version = "dev"

var (
	configPath string
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "integrityctl",
		Short:         "Operate the storefront payment integrity store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("STOREFRONT_CONFIG"), "configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides configuration)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	telemetry.InitLogger(os.Stderr, cfg.Log.Level)
	return cfg, nil
}

// withStore opens the configured database for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *sqlite.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cmd.Context(), store)
}
