package headmask

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"facechanger/internal/geometry"
)

// Source is a decoded-enough image handed to the cascade. Data holds the
// encoded bytes, URL an optional readable location for remote detectors.
type Source struct {
	Data   []byte
	Width  int
	Height int
	URL    string
}

// NewSource reads the image header to obtain its dimensions. Every format
// accepted for upload has a registered decoder.
func NewSource(data []byte, url string) (Source, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Source{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Source{}, fmt.Errorf("image has no area: %dx%d", cfg.Width, cfg.Height)
	}
	return Source{Data: data, Width: cfg.Width, Height: cfg.Height, URL: url}, nil
}

// Detection is a scored box in source pixel coordinates.
type Detection struct {
	Box        geometry.Box `json:"box"`
	Confidence float64      `json:"confidence"`
}

// Landmark is a pose keypoint with coordinates normalised to [0,1].
type Landmark struct {
	Index      int     `json:"index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Pose landmark indices: nose, eyes and ears, then shoulders.
var (
	headLandmarks     = []int{0, 1, 2, 7, 8}
	shoulderLandmarks = []int{11, 12}
)

type FaceDetector interface {
	DetectFaces(ctx context.Context, src Source) ([]Detection, error)
}

type PoseDetector interface {
	DetectPose(ctx context.Context, src Source) ([]Landmark, error)
}

type PersonDetector interface {
	DetectPersons(ctx context.Context, src Source) ([]Detection, error)
}

// Segmenter returns an alpha or greyscale mask image for the region named by prompt.
type Segmenter interface {
	Segment(ctx context.Context, imageURL, prompt string) ([]byte, error)
}

// bestDetection picks the highest-confidence usable detection at or above
// minConfidence; ties go to the larger area.
func bestDetection(dets []Detection, minConfidence float64) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range dets {
		if d.Confidence < minConfidence || d.Box.Empty() {
			continue
		}
		if !found || d.Confidence > best.Confidence ||
			(d.Confidence == best.Confidence && area(d.Box) > area(best.Box)) {
			best = d
			found = true
		}
	}
	return best, found
}

func area(b geometry.Box) int {
	return b.Width() * b.Height()
}
