package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// Archive writes face crops to disk as JPEG. Unknown faces go to Dir under
// random names; registration samples go to SampleDir as
// <name>.<id>.<n>.jpg.
type Archive struct {
	Dir       string
	SampleDir string
	// MaxDim bounds the longer side of a stored crop. 0 keeps the original
	// size.
	MaxDim  int
	Quality int
}

// ArchiveUnknown stores crop as unknown_<uuid>.jpg in Dir and returns its
// path.
func (a *Archive) ArchiveUnknown(_ context.Context, crop image.Image) (string, error) {
	return a.write(a.Dir, "unknown_"+uuid.NewString()+".jpg", crop)
}

// SaveSample stores sample n for an identity as <name>.<id>.<n>.jpg in
// SampleDir, with spaces in name replaced by underscores.
func (a *Archive) SaveSample(_ context.Context, id, name string, n int, crop image.Image) (string, error) {
	file := fmt.Sprintf("%s.%s.%d.jpg", strings.ReplaceAll(name, " ", "_"), id, n)
	return a.write(a.SampleDir, file, crop)
}

func (a *Archive) write(dir, file string, img image.Image) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("archive %s: no directory configured", file)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive mkdir: %w", err)
	}

	path := filepath.Join(dir, file)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("archive create: %w", err)
	}

	q := a.Quality
	if q <= 0 {
		q = 90
	}
	if err := jpeg.Encode(f, Downscale(img, a.MaxDim), &jpeg.Options{Quality: q}); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("archive encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("archive close: %w", err)
	}
	return path, nil
}

// PruneOlderThan deletes archived unknown crops last modified before
// cutoff and returns how many were removed. Samples are never pruned.
func (a *Archive) PruneOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	if a.Dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(a.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("archive prune: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "unknown_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.Dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("archive prune: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// Downscale shrinks img so neither side exceeds maxDim, keeping the aspect
// ratio. Smaller images are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}

	nw, nh := maxDim, maxDim
	if w >= h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
