package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/memory"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

func TestReadStats_CountsIdentitiesTodayAndTotal(t *testing.T) {
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.Local)
	ms := memory.New().WithNow(func() time.Time { return now })
	ctx := context.Background()

	for _, p := range [][2]string{{"101", "Ada"}, {"102", "Grace"}, {"103", "Linus"}} {
		if _, err := ms.AddIdentity(ctx, p[0], p[1]); err != nil {
			t.Fatal(err)
		}
	}
	// Two marks yesterday, one today.
	for _, id := range []string{"101", "102"} {
		if _, err := ms.MarkAttendance(ctx, id, ""); err != nil {
			t.Fatal(err)
		}
	}
	now = now.Add(24 * time.Hour)
	if _, err := ms.MarkAttendance(ctx, "101", ""); err != nil {
		t.Fatal(err)
	}

	st, err := service.ReadStats(ctx, ms, types.DateOf(now))
	if err != nil {
		t.Fatalf("ReadStats: %v", err)
	}
	want := types.Stats{Date: "2026-02-15", Identities: 3, TodayAttendance: 1, TotalAttendance: 3}
	if st != want {
		t.Errorf("got %+v, want %+v", st, want)
	}
}

func TestReadStats_Errors(t *testing.T) {
	ms := memory.New()
	ctx := context.Background()

	if _, err := service.ReadStats(ctx, ms, "yesterday"); !errors.Is(err, types.ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}

	boom := errors.New("disk gone")
	ms.FailNext("list_attendance", boom)
	if _, err := service.ReadStats(ctx, ms, "2026-02-15"); !errors.Is(err, boom) {
		t.Errorf("expected store failure to propagate, got %v", err)
	}
}
