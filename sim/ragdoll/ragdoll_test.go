package ragdoll

import (
	"errors"
	"math"
	"testing"

	"github.com/smanolloff/qwop-gym/sim"
	"github.com/smanolloff/qwop-gym/types"
)

var (
	_ sim.Simulation  = (*Model)(nil)
	_ sim.FrameSource = (*Model)(nil)
)

const dt = 1.0 / 30

func TestModel_StepAdvancesTime(t *testing.T) {
	m := New(1)
	for i := 0; i < 3; i++ {
		if err := m.Step(dt); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	if got := m.ElapsedTime(); math.Abs(got-3*dt) > 1e-12 {
		t.Errorf("ElapsedTime() = %v, want %v", got, 3*dt)
	}
	if err := m.Step(0); err == nil {
		t.Error("Step(0) expected error")
	}
}

func TestModel_Deterministic(t *testing.T) {
	run := func() [types.NumBodyParts]types.BodyPartSample {
		m := New(42)
		for i := 0; i < 90; i++ {
			key := types.KeyQ
			if (i/10)%2 == 1 {
				key = types.KeyW
			}
			_ = m.ReleaseKey(types.KeyQ)
			_ = m.ReleaseKey(types.KeyW)
			_ = m.PressKey(key)
			_ = m.Step(dt)
		}
		var out [types.NumBodyParts]types.BodyPartSample
		for _, p := range types.BodyParts {
			out[p], _ = m.BodyPart(p)
		}
		return out
	}
	if a, b := run(), run(); a != b {
		t.Errorf("same seed produced different poses:\n%v\n%v", a, b)
	}
}

func TestModel_WalkingMovesForward(t *testing.T) {
	m := New(7)
	for i := 0; i < 60; i++ {
		_ = m.ReleaseKey(types.KeyQ)
		_ = m.ReleaseKey(types.KeyW)
		if (i/8)%2 == 0 {
			_ = m.PressKey(types.KeyQ)
		} else {
			_ = m.PressKey(types.KeyW)
		}
		_ = m.Step(dt)
	}
	if m.Progress() <= 0 {
		t.Errorf("Progress() = %v, want > 0", m.Progress())
	}
}

func TestModel_ResetRestoresStart(t *testing.T) {
	m := New(3)
	start, _ := m.BodyPart(types.PartHead)
	_ = m.PressKey(types.KeyQ)
	for i := 0; i < 30; i++ {
		_ = m.Step(dt)
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, _ := m.BodyPart(types.PartHead)
	if got != start {
		t.Errorf("head after reset = %+v, want %+v", got, start)
	}
	if m.ElapsedTime() != 0 || m.Progress() != 0 || m.Ended() {
		t.Errorf("time/progress/ended = %v/%v/%v after reset", m.ElapsedTime(), m.Progress(), m.Ended())
	}
}

func TestModel_UnknownInputs(t *testing.T) {
	m := New(0)
	if err := m.PressKey(types.Key(9)); err == nil {
		t.Error("PressKey(9) expected error")
	}
	if _, err := m.BodyPart(types.BodyPart(12)); err == nil {
		t.Error("BodyPart(12) expected error")
	}
}

func TestModel_CaptureFrame(t *testing.T) {
	m := New(5)
	if _, err := m.CaptureFrame(t.Context()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("CaptureFrame before Render = %v, want ErrNoFrame", err)
	}
	if err := m.Render(); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img, err := m.CaptureFrame(t.Context())
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != FrameWidth || b.Dy() != FrameHeight {
		t.Errorf("bounds = %v, want %dx%d", b, FrameWidth, FrameHeight)
	}
	if m.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", m.Frames())
	}
}

func TestRasterise_HeadDisc(t *testing.T) {
	snap := &snapshot{}
	snap.parts[types.PartHead] = point{0, 1.5}
	img := snap.rasterise()

	cx, cy := FrameWidth/2, FrameHeight-60-180
	radius := int(math.Round(headRadius * pixelsPerM))
	if got := img.RGBAAt(cx+radius, cy); got != limbColor {
		t.Errorf("pixel at head edge = %v, want %v", got, limbColor)
	}
	if got := img.RGBAAt(cx+radius+1, cy); got != skyColor {
		t.Errorf("pixel outside head = %v, want %v", got, skyColor)
	}
}
