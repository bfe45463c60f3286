package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/Rollcall/internal/db"
	sqlitestore "github.com/BrandonDHaskell/Rollcall/internal/rollcall/store/sqlite"
)

// testClock is a settable clock shared between the test and the worker
// goroutine.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// openTestStore returns a Store over a private in-memory database with the
// production schema. It is closed automatically when the test finishes.
func openTestStore(t *testing.T, clock *testClock, tweak ...func(*sqlitestore.Options)) *sqlitestore.Store {
	t.Helper()

	opts := sqlitestore.Options{
		DSN:        db.MemoryDSN(t.Name()),
		BcryptCost: bcrypt.MinCost,
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	s, err := sqlitestore.Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("openTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustAdd(t *testing.T, s *sqlitestore.Store, id, name string) {
	t.Helper()
	ok, err := s.AddIdentity(context.Background(), id, name)
	if err != nil {
		t.Fatalf("AddIdentity(%s): %v", id, err)
	}
	if !ok {
		t.Fatalf("AddIdentity(%s): expected insert", id)
	}
}

func mustMark(t *testing.T, s *sqlitestore.Store, id, name string) bool {
	t.Helper()
	ok, err := s.MarkAttendance(context.Background(), id, name)
	if err != nil {
		t.Fatalf("MarkAttendance(%s): %v", id, err)
	}
	return ok
}
