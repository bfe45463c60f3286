package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	sqlitestore "github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/sqlite"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

func newAttendanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Inspect attendance records",
	}

	var date string
	list := &cobra.Command{
		Use:   "list",
		Short: "List attendance, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "today" {
				date = types.DateOf(time.Now())
			}
			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				recs, err := st.ListAttendance(ctx, date)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tDATE\tTIME")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.IdentityID, r.IdentityName, r.Date, r.Time)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&date, "date", "", `Only this date (YYYY-MM-DD or "today")`)

	cmd.AddCommand(list)
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show registered identities and attendance counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" || date == "today" {
				date = types.DateOf(time.Now())
			}
			return a.withStore(cmd.Context(), func(ctx context.Context, st *sqlitestore.Store) error {
				s, err := service.ReadStats(ctx, st, date)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "registered identities: %d\n", s.Identities)
				fmt.Fprintf(out, "attendance on %s: %d\n", s.Date, s.TodayAttendance)
				fmt.Fprintf(out, "total attendance:      %d\n", s.TotalAttendance)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", `Date to count (YYYY-MM-DD, default today)`)
	return cmd
}
