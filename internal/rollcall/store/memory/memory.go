// Package memory is an in-process store.Store for tests and dev runs. It
// enforces the same validation and daily dedup as the sqlite store and
// counts calls per operation so callers can assert which calls were made.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/store"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	identities map[string]types.Identity
	events     []types.AttendanceRecord
	admins     map[string]string
	calls      map[string]int
	failNext   map[string]error
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:        time.Now,
		identities: make(map[string]types.Identity),
		admins:     map[string]string{"admin": "admin123"},
		calls:      make(map[string]int),
		failNext:   make(map[string]error),
	}
}

// WithNow replaces the clock used for dates and timestamps.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Calls returns how many times op was invoked. Test-only helper.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FailNext makes the next call of op return err. Test-only helper.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	s.failNext[op] = err
	s.mu.Unlock()
}

// enter records the call and returns any injected failure. s.mu must be held.
func (s *Store) enter(op string) error {
	s.calls[op]++
	if err, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) AddIdentity(_ context.Context, id, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("add_identity"); err != nil {
		return false, err
	}
	if err := types.ValidateIdentityID(id); err != nil {
		return false, err
	}
	name, err := types.NormalizeName(name)
	if err != nil {
		return false, err
	}
	if _, ok := s.identities[id]; ok {
		return false, nil
	}
	s.identities[id] = types.Identity{ID: id, Name: name, RegisteredAt: s.now()}
	return true, nil
}

func (s *Store) MarkAttendance(_ context.Context, id, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("mark_attendance"); err != nil {
		return false, err
	}
	ident, ok := s.identities[id]
	if !ok {
		return false, fmt.Errorf("mark_attendance: %w: %s", types.ErrIdentityNotFound, id)
	}
	now := s.now()
	date := types.DateOf(now)
	for _, e := range s.events {
		if e.IdentityID == id && e.Date == date {
			return false, nil
		}
	}
	if name == "" {
		name = ident.Name
	}
	s.events = append(s.events, types.AttendanceRecord{
		IdentityID:   id,
		IdentityName: name,
		Date:         date,
		Time:         now.Format(types.TimeLayout),
	})
	ident.LastSeenAt = &now
	s.identities[id] = ident
	return true, nil
}

func (s *Store) GetIdentityName(_ context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("get_identity_name"); err != nil {
		return "", false, err
	}
	ident, ok := s.identities[id]
	return ident.Name, ok, nil
}

func (s *Store) GetIdentityByID(_ context.Context, id string) (types.Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("get_identity_by_id"); err != nil {
		return types.Identity{}, false, err
	}
	ident, ok := s.identities[id]
	return ident, ok, nil
}

func (s *Store) ListAttendance(_ context.Context, date string) ([]types.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("list_attendance"); err != nil {
		return nil, err
	}
	if date != "" {
		if err := types.ValidateDate(date); err != nil {
			return nil, err
		}
	}
	out := []types.AttendanceRecord{}
	for i := len(s.events) - 1; i >= 0; i-- {
		if date == "" || s.events[i].Date == date {
			out = append(out, s.events[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Time > out[j].Time
	})
	return out, nil
}

func (s *Store) ListIdentities(_ context.Context) ([]types.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("list_identities"); err != nil {
		return nil, err
	}
	out := make([]types.Identity, 0, len(s.identities))
	for _, i := range s.identities {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// VerifyAdmin compares plaintext; this store never touches disk.
func (s *Store) VerifyAdmin(_ context.Context, username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("verify_admin"); err != nil {
		return false, err
	}
	pw, ok := s.admins[username]
	return ok && pw == password, nil
}

func (s *Store) ChangeAdminPassword(_ context.Context, username, newPassword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("change_admin_password"); err != nil {
		return false, err
	}
	if newPassword == "" {
		return false, types.ErrInvalidPassword
	}
	if _, ok := s.admins[username]; !ok {
		return false, nil
	}
	s.admins[username] = newPassword
	return true, nil
}
