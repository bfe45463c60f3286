package vision_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/vision"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeCamera struct {
	frame image.Image
	err   error
}

func (c fakeCamera) CaptureFrame(context.Context) (image.Image, error) { return c.frame, c.err }

type fakeDetector []image.Rectangle

func (d fakeDetector) DetectFaces(context.Context, image.Image) ([]image.Rectangle, error) { return d, nil }

// widthRecognizer reports the crop width as the distance so tests can check
// which crop was recognized.
type widthRecognizer struct{}

func (widthRecognizer) Recognize(crop image.Image) (types.Recognition, error) {
	return types.Recognition{CandidateID: "1", Distance: float64(crop.Bounds().Dx())}, nil
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// ── Pipeline ─────────────────────────────────────────────────────────────────

func TestPipeline_Scan_RecognizesEachFace(t *testing.T) {
	frame := solid(100, 80, color.White)
	p := vision.Pipeline{
		Camera:     fakeCamera{frame: frame},
		Detector:   fakeDetector{image.Rect(0, 0, 20, 20), image.Rect(50, 10, 90, 60), image.Rect(200, 200, 210, 210)},
		Recognizer: widthRecognizer{},
	}

	got, err := p.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	// The third box lies outside the frame and is skipped.
	if len(got) != 2 {
		t.Fatalf("expected 2 sightings, got %d", len(got))
	}
	if got[0].Recognition.Distance != 20 || got[1].Recognition.Distance != 40 {
		t.Errorf("unexpected distances %v, %v", got[0].Recognition.Distance, got[1].Recognition.Distance)
	}
	if got[1].Crop.Bounds().Min != (image.Point{}) {
		t.Errorf("expected crop origin at 0,0, got %v", got[1].Crop.Bounds())
	}
}

func TestPipeline_Scan_CameraError(t *testing.T) {
	boom := errors.New("camera unplugged")
	p := vision.Pipeline{Camera: fakeCamera{err: boom}, Detector: fakeDetector{}, Recognizer: widthRecognizer{}}

	if _, err := p.Scan(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected camera error, got %v", err)
	}
}

// ── Archive ──────────────────────────────────────────────────────────────────

func TestArchive_UnknownIsDownscaled(t *testing.T) {
	dir := t.TempDir()
	a := &vision.Archive{Dir: dir, MaxDim: 64}

	path, err := a.ArchiveUnknown(context.Background(), solid(256, 128, color.Black))
	if err != nil {
		t.Fatalf("ArchiveUnknown: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "unknown_") {
		t.Errorf("unexpected path %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 32 {
		t.Errorf("expected 64x32, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestArchive_SampleNaming(t *testing.T) {
	dir := t.TempDir()
	a := &vision.Archive{SampleDir: dir}

	path, err := a.SaveSample(context.Background(), "101", "Ada Lovelace", 3, solid(10, 10, color.White))
	if err != nil {
		t.Fatalf("SaveSample: %v", err)
	}
	if filepath.Base(path) != "Ada_Lovelace.101.3.jpg" {
		t.Errorf("unexpected sample name %q", filepath.Base(path))
	}
}

func TestArchive_NoDirectory(t *testing.T) {
	a := &vision.Archive{}
	if _, err := a.ArchiveUnknown(context.Background(), solid(4, 4, color.White)); err == nil {
		t.Fatal("expected error without a directory")
	}
}

// ── RemoteScanner ────────────────────────────────────────────────────────────

func TestRemoteScanner_DecodesSightings(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(8, 6, color.White), nil); err != nil {
		t.Fatal(err)
	}
	crop := base64.StdEncoding.EncodeToString(buf.Bytes())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sightings": []map[string]any{
				{"candidate_id": "101", "distance": 41.5, "box": []int{1, 2, 9, 8}, "crop_jpeg": crop},
				{"candidate_id": "", "distance": 99},
			},
		})
	}))
	defer srv.Close()

	rs := vision.NewRemoteScanner(srv.URL+"/", 0)
	got, err := rs.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sightings, got %d", len(got))
	}
	if got[0].Recognition.CandidateID != "101" || got[0].Recognition.Distance != 41.5 {
		t.Errorf("unexpected recognition %+v", got[0].Recognition)
	}
	if got[0].Box != image.Rect(1, 2, 9, 8) {
		t.Errorf("unexpected box %v", got[0].Box)
	}
	if got[0].Crop == nil || got[0].Crop.Bounds().Dx() != 8 {
		t.Errorf("crop not decoded: %v", got[0].Crop)
	}
	if got[1].Crop != nil {
		t.Error("expected no crop for second sighting")
	}
}

func TestRemoteScanner_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not trained", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := vision.NewRemoteScanner(srv.URL, 0).Scan(context.Background())
	if err == nil || !strings.Contains(err.Error(), "model not trained") {
		t.Fatalf("expected status error carrying body, got %v", err)
	}
}

func TestSidecar_FrameAndDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/frame":
			w.Header().Set("Content-Type", "image/jpeg")
			_ = jpeg.Encode(w, solid(32, 24, color.White), nil)
		case "/detect":
			if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
				http.Error(w, "want jpeg", http.StatusUnsupportedMediaType)
				return
			}
			_, _ = w.Write([]byte(`{"boxes":[[0,0,8,8],[10,4,30,20]]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	sc := vision.NewSidecar(srv.URL, 0)
	frame, err := sc.Camera.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if frame.Bounds().Dx() != 32 {
		t.Errorf("unexpected frame bounds %v", frame.Bounds())
	}

	boxes, err := sc.Detector.DetectFaces(context.Background(), frame)
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(boxes) != 2 || boxes[1] != image.Rect(10, 4, 30, 20) {
		t.Errorf("unexpected boxes %v", boxes)
	}
}

func TestRemoteDetector_CancelAbortsInFlightCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	sc := vision.NewSidecar(srv.URL, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := sc.Detector.DetectFaces(ctx, solid(8, 8, color.White))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("detect returned after %v; cancellation was ignored", elapsed)
	}
}
