// Package main is badgectl, the operator CLI of the badge engine.
//
// It manages the database schema, seeds the achievement catalog, runs a
// badge computation outside the API and mints tokens for local testing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Posologia-Edu/pbl-virtual-sub001/config"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/bootstrap"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// env is what every subcommand gets after configuration is loaded.
type env struct {
	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	var (
		envFile  string
		logLevel string
	)

	root := &cobra.Command{
		Use:   "badgectl",
		Short: "Operate the PBL badge engine",
		Long: `badgectl manages the badge engine from the command line: schema
migrations, the achievement catalog, ad-hoc badge computation and
development tokens. It reads the same environment as the API server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := os.Setenv("ENV_FILE", envFile); err != nil {
					return err
				}
			}
			if logLevel != "" {
				if err := os.Setenv("LOG_LEVEL", logLevel); err != nil {
					return err
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		newMigrateCmd(),
		newRollbackCmd(),
		newStatusCmd(),
		newSeedCmd(),
		newCatalogCheckCmd(),
		newEvaluateCmd(),
		newTokenCmd(),
		newHashKeyCmd(),
	)
	return root
}

// loadEnv reads the configuration and builds the logger. Logs go to stderr so
// that command output on stdout stays machine readable.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := bootstrap.NewLogger(cfg, cmd.ErrOrStderr())
	return &env{cfg: cfg, log: log}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
