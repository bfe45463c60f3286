package service

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

// GateStore is the part of the store the gate needs.
type GateStore interface {
	GetIdentityName(ctx context.Context, id string) (string, bool, error)
	MarkAttendance(ctx context.Context, id, name string) (bool, error)
}

// Archiver keeps crops of faces that matched nobody.
type Archiver interface {
	ArchiveUnknown(ctx context.Context, crop image.Image) (string, error)
}

// Gate decides which recognitions become attendance events. It remembers
// which identities were settled in the current dedup scope and skips the
// store for them. The store's own same-day check stays authoritative.
type Gate struct {
	store      GateStore
	thresholds Thresholds
	archiver   Archiver
	logger     *slog.Logger

	mu      sync.Mutex
	scope   string
	settled map[string]string // id -> name
	marked  []string
}

// GateConfig configures NewGate.
type GateConfig struct {
	Store      GateStore
	Thresholds Thresholds
	// Archiver may be nil, in which case unknown faces are only reported.
	Archiver Archiver
	Logger   *slog.Logger
}

// NewGate validates the thresholds and returns a gate with an empty scope.
func NewGate(cfg GateConfig) (*Gate, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		store:      cfg.Store,
		thresholds: cfg.Thresholds,
		archiver:   cfg.Archiver,
		logger:     cfg.Logger,
		settled:    make(map[string]string),
	}, nil
}

// BeginScope starts a new dedup scope when key differs from the current
// one. Keys are dates in daily mode and session IDs in session mode.
func (g *Gate) BeginScope(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if key == g.scope {
		return
	}
	g.scope = key
	g.settled = make(map[string]string)
	g.marked = nil
}

// Scope returns the current dedup scope key, or "" before the first
// BeginScope.
func (g *Gate) Scope() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scope
}

// Marked returns the ids newly marked in the current scope, in order.
func (g *Gate) Marked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.marked))
	copy(out, g.marked)
	return out
}

// Thresholds returns the distances the gate was built with.
func (g *Gate) Thresholds() Thresholds { return g.thresholds }

// Admit applies confidence gating and dedup to one recognition. crop is
// only used for archival and may be nil. Store and archive errors are
// returned as is; the scope set is left untouched on failure.
func (g *Gate) Admit(ctx context.Context, rec types.Recognition, crop image.Image) (types.Admission, error) {
	adm := types.Admission{CandidateID: rec.CandidateID, Distance: rec.Distance}

	switch {
	case rec.Distance < g.thresholds.Accept:
		return g.admitCandidate(ctx, adm)

	case rec.Distance > g.thresholds.Reject:
		adm.Outcome = types.OutcomeUnrecognized
		if g.archiver != nil && crop != nil {
			path, err := g.archiver.ArchiveUnknown(ctx, crop)
			if err != nil {
				return adm, fmt.Errorf("archive unknown face: %w", err)
			}
			adm.ArchivedAs = path
			g.logger.Info("archived unknown face", "distance", rec.Distance, "path", path)
		}
		return adm, nil

	default:
		adm.Outcome = types.OutcomeTentative
		return adm, nil
	}
}

func (g *Gate) admitCandidate(ctx context.Context, adm types.Admission) (types.Admission, error) {
	id := adm.CandidateID

	g.mu.Lock()
	scope := g.scope
	name, done := g.settled[id]
	g.mu.Unlock()
	if done {
		adm.Outcome = types.OutcomeAlreadyMarked
		adm.Name = name
		return adm, nil
	}

	name, ok, err := g.store.GetIdentityName(ctx, id)
	if err != nil {
		return adm, err
	}
	if !ok {
		adm.Outcome = types.OutcomeUnknownIdentity
		return adm, nil
	}
	adm.Name = name

	inserted, err := g.store.MarkAttendance(ctx, id, name)
	if err != nil {
		return adm, err
	}

	adm.Outcome = types.OutcomeDuplicate
	if inserted {
		adm.Outcome = types.OutcomeMarked
	}

	g.mu.Lock()
	if g.scope == scope {
		g.settled[id] = name
		if inserted {
			g.marked = append(g.marked, id)
		}
	}
	g.mu.Unlock()

	g.logger.Debug("admitted", "id", id, "outcome", adm.Outcome, "scope", scope)
	return adm, nil
}
