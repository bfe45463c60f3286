package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BrandonDHaskell/Rollcall/internal/db"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/store"
)

// ErrUnauthorized is returned for a wrong username or password.
var ErrUnauthorized = errors.New("invalid admin credentials")

// ResetPlan says what a full reset removes. Close must shut the store down
// before any file is deleted.
type ResetPlan struct {
	Close  func() error
	DBPath string
	// Dirs are emptied, not removed.
	Dirs []string
}

// AdminService gates administrative actions on the admin credential.
type AdminService struct {
	store  store.AdminStore
	logger *slog.Logger
}

// NewAdminService returns a service over st. A nil logger discards.
func NewAdminService(st store.AdminStore, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AdminService{store: st, logger: logger}
}

// Login returns ErrUnauthorized unless the credential matches.
func (s *AdminService) Login(ctx context.Context, username, password string) error {
	ok, err := s.store.VerifyAdmin(ctx, username, password)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("admin login rejected", "username", username)
		return ErrUnauthorized
	}
	return nil
}

// ChangePassword requires the current password.
func (s *AdminService) ChangePassword(ctx context.Context, username, current, next string) error {
	if err := s.Login(ctx, username, current); err != nil {
		return err
	}
	ok, err := s.store.ChangeAdminPassword(ctx, username, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	s.logger.Info("admin password changed", "username", username)
	return nil
}

// Reset deletes every identity, attendance event, sample and archived crop.
// The store is closed first and cannot be used afterwards.
func (s *AdminService) Reset(ctx context.Context, username, password string, plan ResetPlan) error {
	if err := s.Login(ctx, username, password); err != nil {
		return err
	}
	if plan.Close != nil {
		if err := plan.Close(); err != nil {
			return fmt.Errorf("reset close store: %w", err)
		}
	}
	if plan.DBPath != "" {
		if err := db.Reset(plan.DBPath); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	for _, dir := range plan.Dirs {
		if err := emptyDir(dir); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	s.logger.Warn("system reset", "username", username, "db", plan.DBPath, "dirs", plan.Dirs)
	return nil
}

func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
