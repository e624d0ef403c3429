package ragdoll

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/smanolloff/qwop-gym/types"
)

// Frame dimensions in pixels.
const (
	FrameWidth  = 640
	FrameHeight = 400
	pixelsPerM  = 120.0
)

// ErrNoFrame is returned by CaptureFrame before the first Render.
var ErrNoFrame = errors.New("no frame rendered yet")

var (
	skyColor    = color.RGBA{R: 0xe6, G: 0xee, B: 0xf5, A: 0xff}
	groundColor = color.RGBA{R: 0x8b, G: 0x5a, B: 0x2b, A: 0xff}
	limbColor   = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}
	markColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// snapshot is the pose captured by Render.
type snapshot struct {
	camera float64
	parts  [types.NumBodyParts]point
	angles [types.NumBodyParts]float64
}

// Render freezes the current pose as the visible frame.
func (m *Model) Render() error {
	snap := &snapshot{camera: m.x, parts: m.parts, angles: m.partAng}
	m.mu.Lock()
	m.rendered = snap
	m.frames++
	m.mu.Unlock()
	return nil
}

// Frames returns the number of frames rendered so far.
func (m *Model) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// CaptureFrame rasterises the last rendered frame. The rasterisation runs on
// its own goroutine, the way a GPU readback completes asynchronously; the
// call returns once it finishes or ctx is done.
func (m *Model) CaptureFrame(ctx context.Context) (image.Image, error) {
	m.mu.Lock()
	snap := m.rendered
	m.mu.Unlock()
	if snap == nil {
		return nil, ErrNoFrame
	}

	done := make(chan *image.RGBA, 1)
	go func() {
		done <- snap.rasterise()
	}()

	select {
	case img := <-done:
		return img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *snapshot) rasterise() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	groundY := FrameHeight - 60
	draw.Draw(img, img.Bounds(), &image.Uniform{C: skyColor}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, groundY, FrameWidth, FrameHeight), &image.Uniform{C: groundColor}, image.Point{}, draw.Src)

	// Metre markers scroll with the camera.
	first := math.Floor(s.camera - FrameWidth/2/pixelsPerM)
	for mark := first; mark < s.camera+FrameWidth/2/pixelsPerM; mark++ {
		px := int((mark-s.camera)*pixelsPerM) + FrameWidth/2
		line(img, px, groundY, px, groundY+10, markColor)
	}

	toScreen := func(p point) (int, int) {
		return int((p.x-s.camera)*pixelsPerM) + FrameWidth/2, groundY - int(p.y*pixelsPerM)
	}
	half := map[types.BodyPart]float64{
		types.PartTorso:   torsoLen / 2,
		types.PartLeftArm: upperArm / 2, types.PartRightArm: upperArm / 2,
		types.PartLeftForearm: foreArm / 2, types.PartRightForearm: foreArm / 2,
		types.PartLeftThigh: thighLen / 2, types.PartRightThigh: thighLen / 2,
		types.PartLeftCalf: calfLen / 2, types.PartRightCalf: calfLen / 2,
		types.PartLeftFoot: footLen / 2, types.PartRightFoot: footLen / 2,
	}
	for part, h := range half {
		c, a := s.parts[part], s.angles[part]
		dx, dy := math.Sin(a)*h, -math.Cos(a)*h
		if part == types.PartLeftFoot || part == types.PartRightFoot {
			dx, dy = h, 0
		}
		x0, y0 := toScreen(point{c.x - dx, c.y - dy})
		x1, y1 := toScreen(point{c.x + dx, c.y + dy})
		line(img, x0, y0, x1, y1, limbColor)
	}
	hx, hy := toScreen(s.parts[types.PartHead])
	disc(img, hx, hy, int(math.Round(headRadius*pixelsPerM)), limbColor)
	return img
}

// line draws a Bresenham line clipped to the image bounds.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	e := dx + dy
	for {
		if (image.Point{X: x0, Y: y0}).In(img.Rect) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func disc(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r && (image.Point{X: cx + x, Y: cy + y}).In(img.Rect) {
				img.SetRGBA(cx+x, cy+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
