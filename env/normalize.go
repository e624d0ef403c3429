package env

import "github.com/smanolloff/qwop-gym/types"

// ObservationSize is the length of a normalised observation vector.
const ObservationSize = types.NumBodyParts * 5

// Observation is a normalised observation: five values per body part, each
// in [-1, 1].
type Observation [ObservationSize]float32

// Limits maps a value range onto [-1, 1].
type Limits struct {
	Min, Max float32
}

// Normalize scales v linearly so that Min maps to -1 and Max to 1, clamped.
func (l Limits) Normalize(v float32) float32 {
	center := (l.Min + l.Max) / 2
	n := (v - center) / (l.Max - center)
	switch {
	case n < -1:
		return -1
	case n > 1:
		return 1
	default:
		return n
	}
}

// Denormalize inverts Normalize for values that were not clamped.
func (l Limits) Denormalize(n float32) float32 {
	center := (l.Min + l.Max) / 2
	return n*(l.Max-center) + center
}

// Per-field limits, observed over many episodes.
var (
	LimitsPosX  = Limits{Min: -10, Max: 1050}
	LimitsPosY  = Limits{Min: -10, Max: 10}
	LimitsAngle = Limits{Min: -6, Max: 6}
	LimitsVelX  = Limits{Min: -20, Max: 60}
	LimitsVelY  = Limits{Min: -25, Max: 60}
)

// Normalize converts a frame's body parts into an Observation.
func Normalize(f types.ObservationFrame) Observation {
	var obs Observation
	for i, p := range f.Parts {
		base := i * 5
		obs[base] = LimitsPosX.Normalize(p.X)
		obs[base+1] = LimitsPosY.Normalize(p.Y)
		obs[base+2] = LimitsAngle.Normalize(p.Angle)
		obs[base+3] = LimitsVelX.Normalize(p.VX)
		obs[base+4] = LimitsVelY.Normalize(p.VY)
	}
	return obs
}
