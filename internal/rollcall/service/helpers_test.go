package service_test

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

// stepClock never sleeps: After advances the clock by d and fires at once.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock(t time.Time) *stepClock { return &stepClock{t: t} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.t = c.t.Add(d)
	now := c.t
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// scriptScanner returns the same sightings on every scan and fails once
// failAt scans have succeeded (0 never fails).
type scriptScanner struct {
	mu        sync.Mutex
	sightings []vision.Sighting
	failAt    int
	err       error
	calls     int
	at        []time.Time
	clock     interface{ Now() time.Time }
	block     chan struct{}
}

func (s *scriptScanner) Scan(ctx context.Context) ([]vision.Sighting, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, s.err
	}
	s.calls++
	if s.clock != nil {
		s.at = append(s.at, s.clock.Now())
	}
	return s.sightings, nil
}

func (s *scriptScanner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptScanner) Times() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.at...)
}

func sighting(id string, distance float64) vision.Sighting {
	return vision.Sighting{
		Recognition: types.Recognition{CandidateID: id, Distance: distance},
		Crop:        image.NewRGBA(image.Rect(0, 0, 4, 4)),
	}
}

// recordingArchive satisfies both Archiver and SampleSink.
type recordingArchive struct {
	mu       sync.Mutex
	unknown  int
	samples  []string
	failWith error
}

func (a *recordingArchive) ArchiveUnknown(context.Context, image.Image) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failWith != nil {
		return "", a.failWith
	}
	a.unknown++
	return "unknown.jpg", nil
}

func (a *recordingArchive) SaveSample(_ context.Context, id, name string, n int, _ image.Image) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := fmt.Sprintf("%s.%s.%d.jpg", name, id, n)
	a.samples = append(a.samples, p)
	return p, nil
}

func (a *recordingArchive) Unknown() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unknown
}

// faceCamera returns a frame with faces at the given boxes.
type faceCamera struct {
	err error
}

func (c faceCamera) CaptureFrame(context.Context) (image.Image, error) {
	if c.err != nil {
		return nil, c.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	img.Set(1, 1, color.White)
	return img, nil
}

type boxDetector []image.Rectangle

func (d boxDetector) DetectFaces(context.Context, image.Image) ([]image.Rectangle, error) { return d, nil }
