// Package store defines the persistence interfaces the rollcall services
// depend on. The sqlite package is the production implementation; memory
// is an in-process stand-in for tests.
package store

import (
	"context"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

// IdentityStore registers and looks up identities.
type IdentityStore interface {
	// AddIdentity reports false when id is already registered.
	AddIdentity(ctx context.Context, id, name string) (bool, error)
	GetIdentityName(ctx context.Context, id string) (string, bool, error)
	GetIdentityByID(ctx context.Context, id string) (types.Identity, bool, error)
	ListIdentities(ctx context.Context) ([]types.Identity, error)
}

// AttendanceStore records and lists attendance events.
type AttendanceStore interface {
	// MarkAttendance reports false when id already has an event for the
	// current date.
	MarkAttendance(ctx context.Context, id, name string) (bool, error)
	// ListAttendance returns every event when date is empty.
	ListAttendance(ctx context.Context, date string) ([]types.AttendanceRecord, error)
}

// AdminStore holds the admin credential.
type AdminStore interface {
	VerifyAdmin(ctx context.Context, username, password string) (bool, error)
	ChangeAdminPassword(ctx context.Context, username, newPassword string) (bool, error)
}

// Store is everything the services need.
type Store interface {
	IdentityStore
	AttendanceStore
	AdminStore
}
