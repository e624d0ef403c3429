// Package imaging captures the rendered frame and wraps it in an IMG message.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/smanolloff/qwop-gym/sim"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// Encoder encodes captured frames.
type Encoder struct {
	Format  types.ImageFormat
	Quality int // JPEG only, 1..100
}

// NewEncoder returns an encoder for format. A zero quality selects DefaultQuality.
func NewEncoder(format types.ImageFormat, quality int) *Encoder {
	if quality <= 0 {
		quality = DefaultQuality
	}
	return &Encoder{Format: format, Quality: quality}
}

// Capture waits for src to deliver the current frame, encodes it and returns
// the IMG message. It does not return before the readback completes.
func (e *Encoder) Capture(ctx context.Context, src sim.FrameSource) (wire.Message, error) {
	img, err := src.CaptureFrame(ctx)
	if err != nil {
		return wire.Message{}, fmt.Errorf("capture frame: %w", err)
	}
	data, err := e.EncodeImage(img)
	if err != nil {
		return wire.Message{}, err
	}
	return wire.EncodeImage(e.Format, data), nil
}

// EncodeImage encodes img in the configured format.
func (e *Encoder) EncodeImage(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch e.Format {
	case types.ImageJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case types.ImagePNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format %s", e.Format)
	}
	return buf.Bytes(), nil
}

// Decode decodes an IMG payload back into an image.
func Decode(payload []byte) (types.ImageFormat, image.Image, error) {
	format, data, err := wire.DecodeImage(payload)
	if err != nil {
		return format, nil, err
	}
	var img image.Image
	switch format {
	case types.ImagePNG:
		img, err = png.Decode(bytes.NewReader(data))
	default:
		img, err = jpeg.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return format, nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return format, img, nil
}
