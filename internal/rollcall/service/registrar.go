package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

// ErrCaptureIncomplete means capture stopped before SamplesRequired crops
// were saved. Nothing is written to the store in that case.
var ErrCaptureIncomplete = errors.New("capture ended before enough samples were taken")

// SampleSink stores registration samples for later model training.
type SampleSink interface {
	SaveSample(ctx context.Context, id, name string, n int, crop image.Image) (string, error)
}

// IdentityAdder registers the identity once capture succeeds.
type IdentityAdder interface {
	AddIdentity(ctx context.Context, id, name string) (bool, error)
}

// RegistrarConfig wires a Registrar to its collaborators.
type RegistrarConfig struct {
	Camera   vision.Camera
	Detector vision.Detector
	Sink     SampleSink
	Store    IdentityAdder
	// SamplesRequired defaults to 30.
	SamplesRequired int
	// MaxFrames caps how many frames are read. Defaults to ten frames per
	// required sample.
	MaxFrames int
	Logger    *slog.Logger
}

// Registrar captures face samples for a new person and registers them.
type Registrar struct {
	cfg RegistrarConfig
}

// Registration reports one completed enrollment. Samples holds the paths
// returned by the sink.
type Registration struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Inserted bool     `json:"inserted"`
	Samples  []string `json:"samples"`
}

// NewRegistrar applies defaults to cfg.
func NewRegistrar(cfg RegistrarConfig) *Registrar {
	if cfg.SamplesRequired <= 0 {
		cfg.SamplesRequired = 30
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = cfg.SamplesRequired * 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Registrar{cfg: cfg}
}

// Register validates the input, captures the samples and then adds the
// identity. Inserted is false when the id was already registered.
func (r *Registrar) Register(ctx context.Context, id, name string) (Registration, error) {
	if err := types.ValidateIdentityID(id); err != nil {
		return Registration{}, err
	}
	name, err := types.NormalizeName(name)
	if err != nil {
		return Registration{}, err
	}
	reg := Registration{ID: id, Name: name}

	for frames := 0; len(reg.Samples) < r.cfg.SamplesRequired; frames++ {
		if frames >= r.cfg.MaxFrames {
			return reg, fmt.Errorf("%w: %d of %d after %d frames",
				ErrCaptureIncomplete, len(reg.Samples), r.cfg.SamplesRequired, frames)
		}
		if err := ctx.Err(); err != nil {
			return reg, fmt.Errorf("%w: %w", ErrCaptureIncomplete, err)
		}

		frame, err := r.cfg.Camera.CaptureFrame(ctx)
		if err != nil {
			return reg, fmt.Errorf("capture frame: %w", err)
		}
		boxes, err := r.cfg.Detector.DetectFaces(ctx, frame)
		if err != nil {
			return reg, fmt.Errorf("detect faces: %w", err)
		}

		for _, b := range boxes {
			if len(reg.Samples) == r.cfg.SamplesRequired {
				break
			}
			crop := vision.Crop(frame, b)
			if crop.Bounds().Empty() {
				continue
			}
			path, err := r.cfg.Sink.SaveSample(ctx, id, name, len(reg.Samples)+1, crop)
			if err != nil {
				return reg, fmt.Errorf("save sample: %w", err)
			}
			reg.Samples = append(reg.Samples, path)
		}
	}

	inserted, err := r.cfg.Store.AddIdentity(ctx, id, name)
	if err != nil {
		return reg, err
	}
	reg.Inserted = inserted
	r.cfg.Logger.Info("identity registered", "id", id, "name", name,
		"inserted", inserted, "samples", len(reg.Samples))
	return reg, nil
}
