// Package cli is the rollcall command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Rollcall/internal/config"
	sqlitestore "github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/sqlite"
)

// Build metadata, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger
	stderr io.Writer
}

// NewRootCmd builds the command tree. Configuration is loaded before any
// subcommand runs.
func NewRootCmd() *cobra.Command {
	a := &app{stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "rollcall",
		Short:         "Face-recognition attendance kiosk backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a.cfg = cfg
			a.stderr = cmd.ErrOrStderr()
			a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newIdentityCmd(a),
		newAttendanceCmd(a),
		newStatsCmd(a),
		newAdminCmd(a),
		newResetCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and exits 1 on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) openStore(ctx context.Context) (*sqlitestore.Store, error) {
	return sqlitestore.Open(ctx, sqlitestore.Options{
		Path:          a.cfg.DBPath,
		Logger:        a.logger,
		AdminUsername: a.cfg.AdminUsername,
		AdminPassword: a.cfg.AdminPassword,
		BcryptCost:    a.cfg.BcryptCost,
	})
}

// withStore opens the store, runs fn and always runs the shutdown
// protocol afterwards.
func (a *app) withStore(ctx context.Context, fn func(context.Context, *sqlitestore.Store) error) (err error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.Close())
	}()
	return fn(ctx, st)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		// Skip config loading.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rollcall %s\n", Version)
			fmt.Fprintf(out, "  Commit: %s\n", CommitSHA)
			fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
		},
	}
}
