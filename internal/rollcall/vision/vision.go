// Package vision adapts the camera and face-recognition collaborators to
// the attendance core. The collaborators themselves live outside this
// module; only their narrow interfaces are declared here.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

// ErrNoFrame is returned by Pipeline.Scan when the camera yields nil.
var ErrNoFrame = errors.New("camera returned no frame")

// Camera supplies frames from a capture device.
type Camera interface {
	CaptureFrame(ctx context.Context) (image.Image, error)
}

// Detector finds face bounding boxes in a frame, in the frame's
// coordinates.
type Detector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// Recognizer matches one face crop against the trained model. Lower
// Distance means a better match.
type Recognizer interface {
	Recognize(crop image.Image) (types.Recognition, error)
}

// Sighting is one recognized face in one frame.
type Sighting struct {
	Recognition types.Recognition
	Box         image.Rectangle
	Crop        image.Image
}

// Crop copies r out of img into a fresh RGBA image with its origin at 0,0.
// The copy does not alias the camera's frame buffer.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}

// Pipeline captures one frame, detects faces and recognizes each crop.
type Pipeline struct {
	Camera     Camera
	Detector   Detector
	Recognizer Recognizer
}

// Scan returns one Sighting per non-empty detected face.
func (p Pipeline) Scan(ctx context.Context) ([]Sighting, error) {
	frame, err := p.Camera.CaptureFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	if frame == nil {
		return nil, ErrNoFrame
	}

	boxes, err := p.Detector.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out := make([]Sighting, 0, len(boxes))
	for _, b := range boxes {
		crop := Crop(frame, b)
		if crop.Bounds().Empty() {
			continue
		}
		rec, err := p.Recognizer.Recognize(crop)
		if err != nil {
			return nil, fmt.Errorf("recognize: %w", err)
		}
		out = append(out, Sighting{Recognition: rec, Box: b, Crop: crop})
	}
	return out, nil
}
