package observation

import (
	"errors"
	"testing"

	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

func TestPolicy_Flags(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name        string
		distance    float64
		nativeEnded bool
		want        types.ObsFlags
	}{
		{"running", 50, false, 0},
		{"ended threshold reached", 105, false, types.ObsEnded | types.ObsSuccess},
		{"native ended past success", 101, true, types.ObsEnded | types.ObsSuccess},
		{"native ended short of success", 60, true, types.ObsEnded},
		{"exactly success distance", 100, true, types.ObsEnded},
		{"past success not ended", 102, false, 0},
		{"ran backwards", -15, false, types.ObsEnded},
		{"negative boundary", -10, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Flags(tt.distance, tt.nativeEnded); got != tt.want {
				t.Errorf("Flags(%v, %v) = %#x, want %#x", tt.distance, tt.nativeEnded, got, tt.want)
			}
		})
	}
}

func TestPolicy_Configurable(t *testing.T) {
	p := Policy{EndedDistance: 20, NegativeEndedDistance: -1, SuccessDistance: 30}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := p.Flags(25, false); got != types.ObsEnded {
		t.Errorf("Flags(25) = %#x, want ended only", got)
	}
	if got := p.Flags(31, false); got != types.ObsEnded|types.ObsSuccess {
		t.Errorf("Flags(31) = %#x, want ended|success", got)
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("DefaultPolicy().Validate() = %v", err)
	}
	bad := DefaultPolicy()
	bad.NegativeEndedDistance = 200
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative threshold above ended threshold")
	}
}

// fakeSim is a scripted simulation.
type fakeSim struct {
	distance float64
	elapsed  float64
	ended    bool
	partErr  error
}

func (f *fakeSim) Step(float64) error         { return nil }
func (f *fakeSim) Reset() error               { return nil }
func (f *fakeSim) Render() error              { return nil }
func (f *fakeSim) PressKey(types.Key) error   { return nil }
func (f *fakeSim) ReleaseKey(types.Key) error { return nil }
func (f *fakeSim) Progress() float64          { return f.distance }
func (f *fakeSim) ElapsedTime() float64       { return f.elapsed }
func (f *fakeSim) Ended() bool                { return f.ended }
func (f *fakeSim) BodyPart(p types.BodyPart) (types.BodyPartSample, error) {
	if f.partErr != nil {
		return types.BodyPartSample{}, f.partErr
	}
	v := float32(p)
	return types.BodyPartSample{X: v, Y: -v, Angle: v / 10, VX: 1, VY: 2}, nil
}

func TestEncoder_Encode(t *testing.T) {
	enc := NewEncoder(DefaultPolicy())
	msg, err := enc.Encode(&fakeSim{distance: 101, elapsed: 4.5, ended: true})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := msg.Bytes()
	if len(raw) != wire.ObservationMessageSize {
		t.Fatalf("len = %d, want %d", len(raw), wire.ObservationMessageSize)
	}

	frame, err := wire.DecodeObservation(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeObservation failed: %v", err)
	}
	if !frame.Ended() || !frame.Success() {
		t.Errorf("flags = %#x, want ended|success", frame.Flags)
	}
	if frame.Time != 4.5 || frame.Distance != 101 {
		t.Errorf("time/distance = %v/%v, want 4.5/101", frame.Time, frame.Distance)
	}
	if got := frame.Part(types.PartRightThigh).X; got != 11 {
		t.Errorf("rightThigh.x = %v, want 11", got)
	}
}

func TestEncoder_PartError(t *testing.T) {
	sentinel := errors.New("segment missing")
	_, err := NewEncoder(DefaultPolicy()).Observe(&fakeSim{partErr: sentinel})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped sentinel", err)
	}
}
