// Package observation snapshots simulation state into the fixed observation
// layout and applies end-of-episode detection.
//
// The simulation's own ended signal is unreliable near the edge of its world,
// so Policy also ends the episode on distance: at or beyond EndedDistance,
// or below NegativeEndedDistance. Success is decided by SuccessDistance,
// independently of which condition ended the episode.
package observation

import (
	"fmt"
	"math"

	"github.com/smanolloff/qwop-gym/types"
)

// Default thresholds in meters.
const (
	DefaultEndedDistance         = 105.0
	DefaultNegativeEndedDistance = -10.0
	DefaultSuccessDistance       = 100.0
)

// Policy holds the end-of-episode thresholds.
type Policy struct {
	// EndedDistance ends the episode when distance >= EndedDistance.
	EndedDistance float64
	// NegativeEndedDistance ends the episode when distance < NegativeEndedDistance.
	NegativeEndedDistance float64
	// SuccessDistance marks an ended episode successful when distance > SuccessDistance.
	SuccessDistance float64
}

// DefaultPolicy returns the standard 100 m course thresholds.
func DefaultPolicy() Policy {
	return Policy{
		EndedDistance:         DefaultEndedDistance,
		NegativeEndedDistance: DefaultNegativeEndedDistance,
		SuccessDistance:       DefaultSuccessDistance,
	}
}

// Validate checks that the thresholds are finite and that the negative
// threshold lies below both positive ones.
func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"ended_distance":          p.EndedDistance,
		"negative_ended_distance": p.NegativeEndedDistance,
		"success_distance":        p.SuccessDistance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite, got %v", name, v)
		}
	}
	if p.NegativeEndedDistance >= p.EndedDistance {
		return fmt.Errorf("negative_ended_distance (%v) must be below ended_distance (%v)",
			p.NegativeEndedDistance, p.EndedDistance)
	}
	if p.NegativeEndedDistance >= p.SuccessDistance {
		return fmt.Errorf("negative_ended_distance (%v) must be below success_distance (%v)",
			p.NegativeEndedDistance, p.SuccessDistance)
	}
	return nil
}

// Flags computes the observation flags for a distance reading and the
// simulation's native ended signal.
func (p Policy) Flags(distance float64, nativeEnded bool) types.ObsFlags {
	ended := nativeEnded ||
		distance >= p.EndedDistance ||
		distance < p.NegativeEndedDistance
	if !ended {
		return 0
	}
	flags := types.ObsEnded
	if distance > p.SuccessDistance {
		flags |= types.ObsSuccess
	}
	return flags
}
