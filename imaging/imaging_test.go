package imaging

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/smanolloff/qwop-gym/types"
)

type stubSource struct {
	img   image.Image
	err   error
	delay time.Duration
}

func (s *stubSource) CaptureFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.img, s.err
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		img.Set(x, 4, color.RGBA{R: 255, A: 255})
	}
	return img
}

func TestEncoder_Capture(t *testing.T) {
	for _, format := range []types.ImageFormat{types.ImageJPEG, types.ImagePNG} {
		t.Run(format.String(), func(t *testing.T) {
			enc := NewEncoder(format, 0)
			msg, err := enc.Capture(t.Context(), &stubSource{img: testImage(), delay: 5 * time.Millisecond})
			if err != nil {
				t.Fatalf("Capture failed: %v", err)
			}
			raw := msg.Bytes()
			if raw[0] != byte(types.HeaderIMG) || raw[1] != byte(format) {
				t.Errorf("prefix = %v, want [5 %d]", raw[:2], format)
			}
			gotFormat, img, err := Decode(msg.Payload)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if gotFormat != format {
				t.Errorf("format = %v, want %v", gotFormat, format)
			}
			if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
				t.Errorf("bounds = %v, want 16x8", img.Bounds())
			}
		})
	}
}

func TestEncoder_CaptureError(t *testing.T) {
	sentinel := errors.New("readback failed")
	_, err := NewEncoder(types.ImageJPEG, 90).Capture(t.Context(), &stubSource{err: sentinel})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped sentinel", err)
	}
}

func TestEncoder_CaptureCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewEncoder(types.ImagePNG, 0).Capture(ctx, &stubSource{img: testImage(), delay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEncoder_UnsupportedFormat(t *testing.T) {
	if _, err := (&Encoder{Format: 7}).EncodeImage(testImage()); err == nil {
		t.Error("expected error for format 7")
	}
}
