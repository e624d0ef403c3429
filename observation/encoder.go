package observation

import (
	"fmt"

	"github.com/smanolloff/qwop-gym/sim"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// Encoder produces observation frames from a simulation.
type Encoder struct {
	policy Policy
}

// NewEncoder creates an encoder applying policy.
func NewEncoder(policy Policy) *Encoder {
	return &Encoder{policy: policy}
}

// Policy returns the encoder's end-of-episode policy.
func (e *Encoder) Policy() Policy {
	return e.policy
}

// Observe snapshots s into a fresh frame.
func (e *Encoder) Observe(s sim.Simulation) (types.ObservationFrame, error) {
	distance := s.Progress()
	frame := types.ObservationFrame{
		Flags:    e.policy.Flags(distance, s.Ended()),
		Time:     float32(s.ElapsedTime()),
		Distance: float32(distance),
	}
	for i, part := range types.BodyParts {
		sample, err := s.BodyPart(part)
		if err != nil {
			return types.ObservationFrame{}, fmt.Errorf("query %s: %w", part, err)
		}
		frame.Parts[i] = sample
	}
	return frame, nil
}

// Encode snapshots s into an OBS message.
func (e *Encoder) Encode(s sim.Simulation) (wire.Message, error) {
	frame, err := e.Observe(s)
	if err != nil {
		return wire.Message{}, err
	}
	return wire.EncodeObservation(frame), nil
}
