package headmask

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"facechanger/internal/geometry"
)

// maxSegmentationPixels bounds a remote mask before it is decoded.
const maxSegmentationPixels = 8192 * 8192

// RenderMask draws a full-resolution binary mask: 255 inside the box, 0 elsewhere.
func RenderMask(width, height int, box geometry.Box) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mask needs a positive size, got %dx%d", width, height)
	}
	box = geometry.Clamp(box, width, height)

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := box.Y1; y < box.Y2; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width]
		for x := box.X1; x < box.X2; x++ {
			row[x] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}
	return buf.Bytes(), nil
}

// SegmentationBox thresholds a segmentation mask and returns the bounding box
// of pixels above threshold, scaled to the source image. Masks with a
// non-opaque alpha channel are read by alpha, others by luminance. An empty
// box means nothing crossed the threshold.
func SegmentationBox(data []byte, width, height, threshold int) (geometry.Box, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return geometry.Box{}, fmt.Errorf("decode segmentation mask header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return geometry.Box{}, nil
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxSegmentationPixels {
		return geometry.Box{}, fmt.Errorf("segmentation mask %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxSegmentationPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return geometry.Box{}, fmt.Errorf("decode segmentation mask: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return geometry.Box{}, nil
	}

	useAlpha := hasTranslucency(img)
	minX, minY := bounds.Max.X, bounds.Max.Y
	maxX, maxY := bounds.Min.X-1, bounds.Min.Y-1
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.At(x, y)
			var v uint8
			if useAlpha {
				_, _, _, a := c.RGBA()
				v = uint8(a >> 8)
			} else {
				v = color.GrayModel.Convert(c).(color.Gray).Y
			}
			if int(v) <= threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX || maxY < minY {
		return geometry.Box{}, nil
	}

	mw, mh := bounds.Dx(), bounds.Dy()
	box := geometry.Box{
		X1: (minX - bounds.Min.X) * width / mw,
		Y1: (minY - bounds.Min.Y) * height / mh,
		X2: (maxX - bounds.Min.X + 1) * width / mw,
		Y2: (maxY - bounds.Min.Y + 1) * height / mh,
	}
	return geometry.Clamp(box, width, height), nil
}

func hasTranslucency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}
