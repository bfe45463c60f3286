package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

var (
	// ErrMonitorRunning is returned by Start while a run is active.
	ErrMonitorRunning = errors.New("monitor is already running")
	ErrInvalidMode    = errors.New("mode must be daily or session")
)

// Mode selects the dedup scope of a run: one calendar day, or one
// bounded session.
type Mode string

const (
	ModeDaily   Mode = "daily"
	ModeSession Mode = "session"
)

// State is Idle or Running.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Scanner produces the sightings of one camera sample.
type Scanner interface {
	Scan(ctx context.Context) ([]vision.Sighting, error)
}

// Status is a point-in-time copy of the monitor's state.
type Status struct {
	State        State         `json:"state"`
	Mode         Mode          `json:"mode,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndsAt       *time.Time    `json:"ends_at,omitempty"`
	Samples      int           `json:"samples"`
	NextInterval time.Duration `json:"next_interval_ns,omitempty"`
	Marked       []string      `json:"marked"`
	LastError    string        `json:"last_error,omitempty"`
}

// MonitorConfig tunes a Monitor. Zero fields take the documented defaults.
type MonitorConfig struct {
	// SessionDuration bounds a session run. Defaults to 5 minutes.
	SessionDuration time.Duration
	// FrameInterval paces daily mode. Defaults to 1 second.
	FrameInterval time.Duration
	// Intervals paces session mode. Defaults to 10-30 seconds.
	Intervals IntervalSource
	Clock     Clock
	Logger    *slog.Logger
	// OnMark is called on the monitor goroutine after each committed
	// attendance event.
	OnMark func(types.Admission)
}

// Monitor runs the recognition loop in daily or session mode. At most one
// run is active at a time.
type Monitor struct {
	gate    *Gate
	scanner Scanner
	cfg     MonitorConfig

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor returns an idle monitor admitting sightings through gate.
func NewMonitor(gate *Gate, scanner Scanner, cfg MonitorConfig) *Monitor {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = 5 * time.Minute
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second
	}
	if cfg.Intervals == nil {
		cfg.Intervals = UniformIntervals{Min: 10 * time.Second, Max: 30 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		gate:    gate,
		scanner: scanner,
		cfg:     cfg,
		status:  Status{State: StateIdle},
	}
}

// Start begins a run and returns its initial status. It returns
// ErrMonitorRunning, changing nothing, while a run is active.
func (m *Monitor) Start(ctx context.Context, mode Mode) (Status, error) {
	if mode != ModeDaily && mode != ModeSession {
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == StateRunning {
		return m.snapshotLocked(), ErrMonitorRunning
	}

	now := m.cfg.Clock.Now()
	st := Status{State: StateRunning, Mode: mode, StartedAt: &now}

	var scope string
	if mode == ModeSession {
		st.SessionID = uuid.NewString()
		ends := now.Add(m.cfg.SessionDuration)
		st.EndsAt = &ends
		scope = st.SessionID
	} else {
		scope = types.DateOf(now)
	}
	m.gate.BeginScope(scope)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.status = st
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(runCtx, st, m.done)

	m.cfg.Logger.Info("monitor started", "mode", mode, "session_id", st.SessionID, "ends_at", st.EndsAt)
	return m.snapshotLocked(), nil
}

// Stop ends the current run and waits for it. It is a no-op when idle.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the current run ends. It returns a closed channel
// when no run was ever started.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.done
}

// Status returns a snapshot, including the ids marked in the current scope.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Status {
	st := m.status
	st.Marked = m.gate.Marked()
	return st
}

func (m *Monitor) loop(ctx context.Context, st Status, done chan struct{}) {
	var runErr error
	defer func() {
		m.mu.Lock()
		m.status.State = StateIdle
		m.status.NextInterval = 0
		if runErr != nil {
			m.status.LastError = runErr.Error()
		}
		// Release the run context when the run ended on its own.
		if m.cancel != nil {
			m.cancel()
		}
		m.cancel = nil
		m.mu.Unlock()
		close(done)
		m.cfg.Logger.Info("monitor stopped", "mode", st.Mode, "session_id", st.SessionID, "error", runErr)
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		now := m.cfg.Clock.Now()
		if st.EndsAt != nil && !now.Before(*st.EndsAt) {
			return
		}
		if st.Mode == ModeDaily {
			m.gate.BeginScope(types.DateOf(now))
		}

		if err := m.sample(ctx); err != nil {
			if ctx.Err() == nil {
				runErr = err
			}
			return
		}

		wait := m.cfg.FrameInterval
		if st.Mode == ModeSession {
			wait = m.cfg.Intervals.Next()
			m.mu.Lock()
			m.status.NextInterval = wait
			m.mu.Unlock()
			if left := st.EndsAt.Sub(m.cfg.Clock.Now()); left < wait {
				wait = max(left, 0)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-m.cfg.Clock.After(wait):
		}
	}
}

// sample scans once and admits every sighting. Any scanner or store failure
// ends the run.
func (m *Monitor) sample(ctx context.Context) error {
	sightings, err := m.scanner.Scan(ctx)
	if err != nil {
		m.cfg.Logger.Warn("scan failed", "error", err)
		return fmt.Errorf("scan: %w", err)
	}

	m.mu.Lock()
	m.status.Samples++
	m.mu.Unlock()

	for _, s := range sightings {
		adm, err := m.gate.Admit(ctx, s.Recognition, s.Crop)
		if err != nil {
			m.cfg.Logger.Warn("admit failed", "candidate_id", s.Recognition.CandidateID, "error", err)
			return fmt.Errorf("admit %s: %w", s.Recognition.CandidateID, err)
		}
		if adm.Outcome == types.OutcomeMarked {
			m.cfg.Logger.Info("attendance marked", "id", adm.CandidateID, "name", adm.Name)
			if m.cfg.OnMark != nil {
				m.cfg.OnMark(adm)
			}
		}
	}
	return nil
}
