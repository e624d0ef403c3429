package recording

import (
	"context"
	"fmt"

	"github.com/smanolloff/qwop-gym/env"
)

// Player is the environment surface replay drives. *env.Env implements it.
type Player interface {
	Reset(ctx context.Context, seed *uint32) (env.Observation, env.Info, error)
	Step(ctx context.Context, action int) (env.StepResult, error)
}

var _ Player = (*env.Env)(nil)

// StepFunc observes each replayed step. A non-nil error stops the replay.
type StepFunc func(step int, res env.StepResult) error

// ReplayResult is the outcome of replaying one episode.
type ReplayResult struct {
	EpisodeID   string  `json:"episode_id"`
	Steps       int     `json:"steps"`
	Distance    float32 `json:"distance"`
	Time        float32 `json:"time"`
	TotalReward float32 `json:"total_reward"`
	Success     bool    `json:"success"`
	// Terminated is set when the episode ended before all actions were used.
	Terminated bool `json:"terminated"`
}

// Matches reports whether the replay reproduced the recorded distance
// within tolerance.
func (r ReplayResult) Matches(ep EpisodeSummary, tolerance float32) bool {
	d := r.Distance - ep.Distance
	if d < 0 {
		d = -d
	}
	return r.Steps == ep.Steps && d <= tolerance && r.Success == ep.Success
}

// Replay reloads the simulation with the episode seed and plays back its
// actions, stopping early if the episode terminates.
func Replay(ctx context.Context, p Player, ep EpisodeSummary, onStep StepFunc) (ReplayResult, error) {
	result := ReplayResult{EpisodeID: ep.EpisodeID}
	seed := ep.Seed
	if _, _, err := p.Reset(ctx, &seed); err != nil {
		return result, fmt.Errorf("replay %s: %w", ep.EpisodeID, err)
	}

	for i, action := range ep.Actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := p.Step(ctx, action)
		if err != nil {
			return result, fmt.Errorf("replay %s step %d: %w", ep.EpisodeID, i+1, err)
		}
		result.Steps++
		result.Distance = res.Frame.Distance
		result.Time = res.Frame.Time
		result.TotalReward += res.Reward
		result.Success = res.Frame.Success()
		if onStep != nil {
			if err := onStep(result.Steps, res); err != nil {
				return result, err
			}
		}
		if res.Terminated {
			result.Terminated = i < len(ep.Actions)-1
			break
		}
	}
	return result, nil
}
