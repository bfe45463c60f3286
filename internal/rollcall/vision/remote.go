package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/types"
)

// RemoteScanner asks a recognition sidecar for one scan over HTTP:
//
//	GET {BaseURL}/scan
//	{"sightings":[{"candidate_id":"101","distance":41.5,"box":[x0,y0,x1,y1],"crop_jpeg":"<base64>"}]}
type RemoteScanner struct {
	BaseURL string
	Client  *http.Client
}

// NewRemoteScanner returns a scanner for baseURL. A non-positive timeout
// means 10 seconds per request.
func NewRemoteScanner(baseURL string, timeout time.Duration) *RemoteScanner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteScanner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type remoteSighting struct {
	CandidateID string  `json:"candidate_id"`
	Distance    float64 `json:"distance"`
	Box         [4]int  `json:"box"`
	CropJPEG    string  `json:"crop_jpeg,omitempty"`
}

type remoteScan struct {
	Sightings []remoteSighting `json:"sightings"`
}

// Scan fetches one scan. A non-200 status is an error carrying the start
// of the response body.
func (r *RemoteScanner) Scan(ctx context.Context) ([]Sighting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/scan", nil)
	if err != nil {
		return nil, fmt.Errorf("remote scan: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote scan: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote scan: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload remoteScan
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote scan decode: %w", err)
	}

	out := make([]Sighting, 0, len(payload.Sightings))
	for i, s := range payload.Sightings {
		sg := Sighting{
			Recognition: types.Recognition{CandidateID: s.CandidateID, Distance: s.Distance},
			Box:         image.Rect(s.Box[0], s.Box[1], s.Box[2], s.Box[3]),
		}
		if s.CropJPEG != "" {
			raw, err := base64.StdEncoding.DecodeString(s.CropJPEG)
			if err != nil {
				return nil, fmt.Errorf("remote scan sighting %d crop: %w", i, err)
			}
			crop, err := jpeg.Decode(bytes.NewReader(raw))
			if err != nil {
				return nil, fmt.Errorf("remote scan sighting %d crop: %w", i, err)
			}
			sg.Crop = crop
		}
		out = append(out, sg)
	}
	return out, nil
}

// RemoteCamera fetches frames from the sidecar: GET {BaseURL}/frame returns
// a JPEG.
type RemoteCamera struct {
	BaseURL string
	Client  *http.Client
}

// CaptureFrame fetches and decodes one frame.
func (c *RemoteCamera) CaptureFrame(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/frame", nil)
	if err != nil {
		return nil, fmt.Errorf("remote frame: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote frame: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote frame: status %d", resp.StatusCode)
	}
	img, err := jpeg.Decode(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("remote frame decode: %w", err)
	}
	return img, nil
}

// RemoteDetector posts a JPEG to {BaseURL}/detect and reads back
// {"boxes":[[x0,y0,x1,y1],...]}.
type RemoteDetector struct {
	BaseURL string
	Client  *http.Client
}

// DetectFaces sends img as JPEG. Cancelling ctx aborts the request.
func (d *RemoteDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("remote detect encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/detect", &buf)
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote detect: status %d", resp.StatusCode)
	}

	var payload struct {
		Boxes [][4]int `json:"boxes"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote detect decode: %w", err)
	}
	out := make([]image.Rectangle, 0, len(payload.Boxes))
	for _, b := range payload.Boxes {
		out = append(out, image.Rect(b[0], b[1], b[2], b[3]))
	}
	return out, nil
}

// Sidecar bundles the sidecar-backed collaborators sharing one client.
type Sidecar struct {
	Scanner  *RemoteScanner
	Camera   *RemoteCamera
	Detector *RemoteDetector
}

// NewSidecar builds all three clients for baseURL.
func NewSidecar(baseURL string, timeout time.Duration) Sidecar {
	sc := NewRemoteScanner(baseURL, timeout)
	return Sidecar{
		Scanner:  sc,
		Camera:   &RemoteCamera{BaseURL: sc.BaseURL, Client: sc.Client},
		Detector: &RemoteDetector{BaseURL: sc.BaseURL, Client: sc.Client},
	}
}
