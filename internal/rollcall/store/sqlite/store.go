// Package sqlite is the access facade over the rollcall database. Every
// call, reads included, becomes one request on a db.Worker queue and is
// executed by the worker goroutine inside its own transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	dbpkg "github.com/BrandonDHaskell/Rollcall/internal/db"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

// Operation kinds understood by the worker.
const (
	OpAddIdentity         = "add_identity"
	OpMarkAttendance      = "mark_attendance"
	OpGetIdentityName     = "get_identity_name"
	OpGetIdentityByID     = "get_identity_by_id"
	OpListAttendance      = "list_attendance"
	OpListIdentities      = "list_identities"
	OpAdminPasswordHash   = "get_admin_password_hash"
	OpChangeAdminPassword = "change_admin_password"
)

// OpVerifyAdmin names the facade call only. The worker reads the hash via
// OpAdminPasswordHash and the compare happens outside the queue.
const OpVerifyAdmin = "verify_admin"

const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
)

// Argument payloads, one per operation kind.
type (
	IdentityArgs struct {
		ID   string
		Name string
	}
	IDArgs struct {
		ID string
	}
	ListAttendanceArgs struct {
		Date string // "" for all dates
	}
	UsernameArgs struct {
		Username string
	}
	PasswordChangeArgs struct {
		Username     string
		PasswordHash string
	}
)

// Options configures Open.
type Options struct {
	// Path is the database file. Ignored when DSN is set.
	Path string
	// DSN overrides Path, e.g. db.MemoryDSN for tests.
	DSN string

	Logger *slog.Logger
	// Now is the clock used for registered_at, last_seen_at and the
	// attendance date. Defaults to time.Now.
	Now func() time.Time

	// Seeded into admin_credentials when the table is empty.
	AdminUsername string
	AdminPassword string
	BcryptCost    int

	Observer func(dbpkg.Applied)
}

// Store implements store.Store on top of one db.Worker.
type Store struct {
	worker     *dbpkg.Worker
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
	path       string
}

var _ store.Store = (*Store)(nil)

// Open opens the database, starts the worker and seeds the default admin
// credential through it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{
		logger:     opts.Logger,
		now:        opts.Now,
		bcryptCost: opts.BcryptCost,
		path:       opts.Path,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if opts.AdminUsername == "" {
		opts.AdminUsername = DefaultAdminUsername
	}
	if opts.AdminPassword == "" {
		opts.AdminPassword = DefaultAdminPassword
	}

	var (
		conn *sql.DB
		err  error
	)
	if opts.DSN != "" {
		s.path = ""
		conn, err = dbpkg.OpenDSN(ctx, opts.DSN)
	} else {
		if s.path == "" {
			s.path = "./data/rollcall.db"
		}
		conn, err = dbpkg.Open(ctx, dbpkg.Config{Path: s.path})
	}
	if err != nil {
		return nil, err
	}

	wopts := []dbpkg.Option{dbpkg.WithLogger(s.logger)}
	if opts.Observer != nil {
		wopts = append(wopts, dbpkg.WithObserver(opts.Observer))
	}
	s.worker = dbpkg.NewWorker(conn, s.handlers(), wopts...)

	if err := s.seedAdmin(ctx, opts.AdminUsername, opts.AdminPassword); err != nil {
		_ = s.worker.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) seedAdmin(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	var seeded bool
	err = s.worker.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		seeded, err = dbpkg.SeedAdmin(ctx, tx, username, string(hash), s.now())
		return err
	})
	if err != nil {
		return err
	}
	if seeded && password == DefaultAdminPassword {
		s.logger.Warn("seeded default admin credential; change it with `rollcall admin passwd`",
			"username", username)
	}
	return nil
}

// Path is the database file, or "" for a DSN-opened store.
func (s *Store) Path() string { return s.path }

// Close runs the shutdown protocol: requests already queued finish, then
// the connection is closed. Safe to call more than once.
func (s *Store) Close() error { return s.worker.Close() }

// Invoke is the generic call: op is one of the Op constants and args the
// matching payload type.
func (s *Store) Invoke(ctx context.Context, op string, args any) (any, error) {
	return s.worker.Invoke(ctx, op, args)
}

// AddIdentity inserts the identity and reports false when the id exists.
// The name is normalized before it is stored.
func (s *Store) AddIdentity(ctx context.Context, id, name string) (bool, error) {
	return dbpkg.Call[bool](ctx, s.worker, OpAddIdentity, IdentityArgs{ID: id, Name: name})
}

// MarkAttendance records today's event for id. It reports false when id
// was already marked today and fails with types.ErrIdentityNotFound for an
// unregistered id.
func (s *Store) MarkAttendance(ctx context.Context, id, name string) (bool, error) {
	return dbpkg.Call[bool](ctx, s.worker, OpMarkAttendance, IdentityArgs{ID: id, Name: name})
}

// GetIdentityName reports ok=false when id is not registered.
func (s *Store) GetIdentityName(ctx context.Context, id string) (string, bool, error) {
	v, err := dbpkg.Call[*string](ctx, s.worker, OpGetIdentityName, IDArgs{ID: id})
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

// GetIdentityByID reports ok=false when id is not registered.
func (s *Store) GetIdentityByID(ctx context.Context, id string) (types.Identity, bool, error) {
	v, err := dbpkg.Call[*types.Identity](ctx, s.worker, OpGetIdentityByID, IDArgs{ID: id})
	if err != nil {
		return types.Identity{}, false, err
	}
	if v == nil {
		return types.Identity{}, false, nil
	}
	return *v, true, nil
}

// ListAttendance returns events newest first. A non-empty date restricts
// the result to that day and must be YYYY-MM-DD.
func (s *Store) ListAttendance(ctx context.Context, date string) ([]types.AttendanceRecord, error) {
	return dbpkg.Call[[]types.AttendanceRecord](ctx, s.worker, OpListAttendance, ListAttendanceArgs{Date: date})
}

// ListIdentities returns every identity ordered by name.
func (s *Store) ListIdentities(ctx context.Context) ([]types.Identity, error) {
	return dbpkg.Call[[]types.Identity](ctx, s.worker, OpListIdentities, nil)
}

// VerifyAdmin fetches the stored hash through the worker and compares it on
// the calling goroutine, so slow bcrypt work never holds up the queue.
// Unknown usernames report false.
func (s *Store) VerifyAdmin(ctx context.Context, username, password string) (bool, error) {
	hash, err := dbpkg.Call[*string](ctx, s.worker, OpAdminPasswordHash, UsernameArgs{Username: username})
	if err != nil {
		return false, fmt.Errorf("%s: %w", OpVerifyAdmin, err)
	}
	if hash == nil {
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%s: %w", OpVerifyAdmin, err)
	}
}

// ChangeAdminPassword hashes newPassword on the calling goroutine so the
// worker never spends time in bcrypt.
func (s *Store) ChangeAdminPassword(ctx context.Context, username, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, types.ErrInvalidPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return false, fmt.Errorf("%s: hash: %w", OpChangeAdminPassword, err)
	}
	return dbpkg.Call[bool](ctx, s.worker, OpChangeAdminPassword,
		PasswordChangeArgs{Username: username, PasswordHash: string(hash)})
}
