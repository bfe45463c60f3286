package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	sqlitestore "github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/sqlite"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative credential",
	}

	var username, current, next string
	passwd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the admin password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				svc := service.NewAdminService(st, a.logger)
				if err := svc.ChangePassword(ctx, username, current, next); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "password changed")
				return nil
			})
		},
	}
	passwd.Flags().StringVar(&username, "username", "admin", "Admin username")
	passwd.Flags().StringVar(&current, "current", "", "Current password")
	passwd.Flags().StringVar(&next, "new", "", "New password")
	_ = passwd.MarkFlagRequired("current")
	_ = passwd.MarkFlagRequired("new")

	cmd.AddCommand(passwd)
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var (
		yes                bool
		username, password string
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every identity, attendance record, sample and archived face",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}

			svc := service.NewAdminService(st, a.logger)
			err = svc.Reset(ctx, username, password, service.ResetPlan{
				Close:  st.Close,
				DBPath: st.Path(),
				Dirs:   []string{filepath.Clean(a.cfg.SampleDir), filepath.Clean(a.cfg.ArchiveDir)},
			})
			// Close is idempotent; this covers the rejected-login path.
			return errors.Join(err, st.Close())
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	cmd.Flags().StringVar(&username, "username", "admin", "Admin username")
	cmd.Flags().StringVar(&password, "password", "", "Admin password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
