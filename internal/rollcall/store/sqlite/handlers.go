package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Rollcall/internal/db"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

func (s *Store) handlers() map[string]dbpkg.Handler {
	return map[string]dbpkg.Handler{
		OpAddIdentity:         s.addIdentity,
		OpMarkAttendance:      s.markAttendance,
		OpGetIdentityName:     s.getIdentityName,
		OpGetIdentityByID:     s.getIdentityByID,
		OpListAttendance:      s.listAttendance,
		OpListIdentities:      s.listIdentities,
		OpAdminPasswordHash:   s.adminPasswordHash,
		OpChangeAdminPassword: s.changeAdminPassword,
	}
}

func argsAs[T any](op string, args any) (T, error) {
	a, ok := args.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: bad arguments %T, want %T", op, args, zero)
	}
	return a, nil
}

func validIdentity(op string, a IdentityArgs) (IdentityArgs, error) {
	if err := types.ValidateIdentityID(a.ID); err != nil {
		return a, fmt.Errorf("%s: %w", op, err)
	}
	name, err := types.NormalizeName(a.Name)
	if err != nil {
		return a, fmt.Errorf("%s: %w", op, err)
	}
	a.Name = name
	return a, nil
}

func (s *Store) addIdentity(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	a, err := argsAs[IdentityArgs](OpAddIdentity, args)
	if err != nil {
		return nil, err
	}
	if a, err = validIdentity(OpAddIdentity, a); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO identities(identity_id, name, registered_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(identity_id) DO NOTHING;
`, a.ID, a.Name, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%s insert: %w", OpAddIdentity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s rows: %w", OpAddIdentity, err)
	}
	return n == 1, nil
}

// markAttendance checks for an event on today's date before inserting.
// The unique (identity_id, date) index backs the check up.
func (s *Store) markAttendance(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	a, err := argsAs[IdentityArgs](OpMarkAttendance, args)
	if err != nil {
		return nil, err
	}
	if a, err = validIdentity(OpMarkAttendance, a); err != nil {
		return nil, err
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM identities WHERE identity_id = ?;`, a.ID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w: %s", OpMarkAttendance, types.ErrIdentityNotFound, a.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s lookup identity: %w", OpMarkAttendance, err)
	}

	now := s.now()
	date := now.Format(types.DateLayout)

	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM attendance_events WHERE identity_id = ? AND date = ?;`, a.ID, date,
	).Scan(&exists)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s check duplicate: %w", OpMarkAttendance, err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_events(identity_id, identity_name, date, time, recorded_at_ms)
VALUES (?, ?, ?, ?, ?);
`, a.ID, a.Name, date, now.Format(types.TimeLayout), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("%s insert: %w", OpMarkAttendance, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE identities SET last_seen_at_ms = ? WHERE identity_id = ?;`,
		now.UnixMilli(), a.ID,
	); err != nil {
		return nil, fmt.Errorf("%s update last_seen: %w", OpMarkAttendance, err)
	}
	return true, nil
}

func (s *Store) getIdentityName(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	a, err := argsAs[IDArgs](OpGetIdentityName, args)
	if err != nil {
		return nil, err
	}

	var name string
	err = tx.QueryRowContext(ctx,
		`SELECT name FROM identities WHERE identity_id = ?;`, a.ID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return (*string)(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpGetIdentityName, err)
	}
	return &name, nil
}

func (s *Store) getIdentityByID(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	a, err := argsAs[IDArgs](OpGetIdentityByID, args)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
SELECT identity_id, name, registered_at_ms, last_seen_at_ms
FROM identities WHERE identity_id = ?;
`, a.ID)
	ident, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return (*types.Identity)(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpGetIdentityByID, err)
	}
	return &ident, nil
}

func (s *Store) listAttendance(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	var a ListAttendanceArgs
	if args != nil {
		var err error
		if a, err = argsAs[ListAttendanceArgs](OpListAttendance, args); err != nil {
			return nil, err
		}
	}

	var (
		rows *sql.Rows
		err  error
	)
	if a.Date == "" {
		rows, err = tx.QueryContext(ctx, `
SELECT identity_id, identity_name, date, time FROM attendance_events
ORDER BY date DESC, time DESC, event_id DESC;
`)
	} else {
		if verr := types.ValidateDate(a.Date); verr != nil {
			return nil, fmt.Errorf("%s: %w", OpListAttendance, verr)
		}
		rows, err = tx.QueryContext(ctx, `
SELECT identity_id, identity_name, date, time FROM attendance_events
WHERE date = ?
ORDER BY time DESC, event_id DESC;
`, a.Date)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpListAttendance, err)
	}
	defer rows.Close()

	out := []types.AttendanceRecord{}
	for rows.Next() {
		var r types.AttendanceRecord
		if err := rows.Scan(&r.IdentityID, &r.IdentityName, &r.Date, &r.Time); err != nil {
			return nil, fmt.Errorf("%s scan: %w", OpListAttendance, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", OpListAttendance, err)
	}
	return out, nil
}

func (s *Store) listIdentities(ctx context.Context, tx *sql.Tx, _ any) (any, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT identity_id, name, registered_at_ms, last_seen_at_ms
FROM identities
ORDER BY name ASC, identity_id ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpListIdentities, err)
	}
	defer rows.Close()

	out := []types.Identity{}
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", OpListIdentities, err)
		}
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", OpListIdentities, err)
	}
	return out, nil
}

// adminPasswordHash is the worker half of verify_admin. It only reads the
// stored hash; the bcrypt compare runs on the caller's goroutine.
func (s *Store) adminPasswordHash(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	a, err := argsAs[UsernameArgs](OpAdminPasswordHash, args)
	if err != nil {
		return nil, err
	}

	var hash string
	err = tx.QueryRowContext(ctx,
		`SELECT password_hash FROM admin_credentials WHERE username = ?;`, a.Username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return (*string)(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpAdminPasswordHash, err)
	}
	return &hash, nil
}

func (s *Store) changeAdminPassword(ctx context.Context, tx *sql.Tx, args any) (any, error) {
	a, err := argsAs[PasswordChangeArgs](OpChangeAdminPassword, args)
	if err != nil {
		return nil, err
	}
	if a.PasswordHash == "" {
		return nil, fmt.Errorf("%s: %w", OpChangeAdminPassword, types.ErrInvalidPassword)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE admin_credentials SET password_hash = ?, updated_at_ms = ?
WHERE username = ?;
`, a.PasswordHash, s.now().UnixMilli(), a.Username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", OpChangeAdminPassword, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s rows: %w", OpChangeAdminPassword, err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (types.Identity, error) {
	var (
		ident      types.Identity
		registered int64
		lastSeen   sql.NullInt64
	)
	if err := row.Scan(&ident.ID, &ident.Name, &registered, &lastSeen); err != nil {
		return types.Identity{}, err
	}
	ident.RegisteredAt = time.UnixMilli(registered)
	if lastSeen.Valid {
		t := time.UnixMilli(lastSeen.Int64)
		ident.LastSeenAt = &t
	}
	return ident, nil
}
