// Package sim defines the narrow interface through which the protocol layer
// drives a simulation. Any engine satisfying Simulation is substitutable.
package sim

import (
	"context"
	"image"

	"github.com/smanolloff/qwop-gym/types"
)

// Simulation is the query/mutate surface consumed by the dispatcher.
// Implementations are single-owner: only one goroutine calls them at a time.
type Simulation interface {
	// Step advances the simulation by dt seconds.
	Step(dt float64) error
	// Reset restarts the episode.
	Reset() error
	// Render makes the current frame visible. It has no effect on state.
	Render() error
	// PressKey holds down k.
	PressKey(k types.Key) error
	// ReleaseKey lets go of k.
	ReleaseKey(k types.Key) error
	// BodyPart returns the kinematic state of one segment.
	BodyPart(p types.BodyPart) (types.BodyPartSample, error)
	// Progress returns the distance travelled in meters.
	Progress() float64
	// ElapsedTime returns simulated seconds since the last reset.
	ElapsedTime() float64
	// Ended reports the simulation's own end-of-episode signal.
	Ended() bool
}

// FrameSource yields the most recently rendered frame. CaptureFrame may block
// on an asynchronous readback and returns once the pixels are available.
type FrameSource interface {
	CaptureFrame(ctx context.Context) (image.Image, error)
}
