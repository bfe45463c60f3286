package service

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

// StatsSource is the read side of the store that ReadStats needs.
type StatsSource interface {
	ListIdentities(ctx context.Context) ([]types.Identity, error)
	ListAttendance(ctx context.Context, date string) ([]types.AttendanceRecord, error)
}

// ReadStats counts registered identities, the events on date and all
// events. It is three separate store calls, so the counts are not a
// single consistent snapshot.
func ReadStats(ctx context.Context, src StatsSource, date string) (types.Stats, error) {
	if err := types.ValidateDate(date); err != nil {
		return types.Stats{}, err
	}

	idents, err := src.ListIdentities(ctx)
	if err != nil {
		return types.Stats{}, fmt.Errorf("stats identities: %w", err)
	}
	today, err := src.ListAttendance(ctx, date)
	if err != nil {
		return types.Stats{}, fmt.Errorf("stats today: %w", err)
	}
	all, err := src.ListAttendance(ctx, "")
	if err != nil {
		return types.Stats{}, fmt.Errorf("stats total: %w", err)
	}

	return types.Stats{
		Date:            date,
		Identities:      len(idents),
		TodayAttendance: len(today),
		TotalAttendance: len(all),
	}, nil
}
