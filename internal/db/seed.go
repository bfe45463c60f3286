package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedAdmin inserts the first admin credential when the table is empty.
// It reports whether a row was written. Must run inside a worker
// transaction.
func SeedAdmin(ctx context.Context, tx *sql.Tx, username, passwordHash string, now time.Time) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_credentials;`).Scan(&n); err != nil {
		return false, fmt.Errorf("seed admin count: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO admin_credentials(username, password_hash, updated_at_ms)
VALUES (?, ?, ?);`, username, passwordHash, now.UTC().UnixMilli()); err != nil {
		return false, fmt.Errorf("seed admin insert: %w", err)
	}
	return true, nil
}
