package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	sqlitestore "github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/sqlite"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

func newIdentityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage registered identities",
	}

	add := &cobra.Command{
		Use:   "add <id> <name...>",
		Short: "Register an identity without capturing samples",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, name := args[0], strings.Join(args[1:], " ")
			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				inserted, err := st.AddIdentity(ctx, id, name)
				if err != nil {
					return err
				}
				if inserted {
					fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already registered\n", id)
				}
				return nil
			})
		},
	}

	enroll := &cobra.Command{
		Use:   "enroll <id> <name...>",
		Short: "Capture face samples from the vision sidecar, then register",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.VisionURL == "" {
				return fmt.Errorf("enroll needs ROLLCALL_VISION_URL")
			}
			id, name := args[0], strings.Join(args[1:], " ")
			sidecar := vision.NewSidecar(a.cfg.VisionURL, a.cfg.VisionTimeout)

			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				reg := service.NewRegistrar(service.RegistrarConfig{
					Camera:          sidecar.Camera,
					Detector:        sidecar.Detector,
					Sink:            &vision.Archive{SampleDir: a.cfg.SampleDir, MaxDim: a.cfg.ArchiveMaxDim},
					Store:           st,
					SamplesRequired: a.cfg.SamplesRequired,
					Logger:          a.logger,
				})
				res, err := reg.Register(ctx, id, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "captured %d samples for %s (%s), inserted=%v\n",
					len(res.Samples), res.Name, res.ID, res.Inserted)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List identities by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				idents, err := st.ListIdentities(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tREGISTERED\tLAST SEEN")
				for _, i := range idents {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.ID, i.Name, i.RegisteredAt.Format(time.DateTime), lastSeen(i))
				}
				return tw.Flush()
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				ident, ok, err := st.GetIdentityByID(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", types.ErrIdentityNotFound, args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:         %s\n", ident.ID)
				fmt.Fprintf(out, "name:       %s\n", ident.Name)
				fmt.Fprintf(out, "registered: %s\n", ident.RegisteredAt.Format(time.DateTime))
				fmt.Fprintf(out, "last seen:  %s\n", lastSeen(ident))
				return nil
			})
		},
	}

	cmd.AddCommand(add, enroll, list, show)
	return cmd
}

func lastSeen(i types.Identity) string {
	if i.LastSeenAt == nil {
		return "-"
	}
	return i.LastSeenAt.Format(time.DateTime)
}
