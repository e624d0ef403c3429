// Package env is a reinforcement-learning style environment over a
// controller connection: discrete key-combination actions, shaped rewards
// and normalised observations.
package env

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/smanolloff/qwop-gym/controller"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/types"
)

// Reward defaults.
const (
	DefaultFailureCost   = 10
	DefaultSuccessReward = 50
	DefaultTimeCostMult  = 10
	SpeedRewardMult      = 0.01
)

// ErrInvalidAction is returned by Step for an out-of-range action.
var ErrInvalidAction = errors.New("invalid action")

// Commander is the controller surface the environment needs.
type Commander interface {
	Do(ctx context.Context, cmd types.Command) (*controller.Reply, error)
	Capture(ctx context.Context, keys types.KeyState) (types.ImageFormat, []byte, error)
	Reload(ctx context.Context, seed uint32) error
}

// Options configures an Env.
type Options struct {
	// FailureCost is subtracted at the end of unsuccessful episodes.
	FailureCost float32
	// SuccessReward is added at the end of successful episodes.
	SuccessReward float32
	// TimeCostMult scales the per-step time penalty.
	TimeCostMult float32
	// FramesPerStep must match the client's steps per command.
	FramesPerStep int
	// AutoDraw renders a frame on every step.
	AutoDraw bool
	// ReducedActionSet drops redundant key combinations (16 to 9 actions).
	ReducedActionSet bool
	// TerminateAction appends an action that presses no keys and ends
	// the episode. It is always the last action.
	TerminateAction bool
	// ReloadOnReset restarts the simulation on every Reset.
	ReloadOnReset bool
	// Seed is the simulation seed used by reloads.
	Seed   uint32
	Logger *log.Logger
}

// DefaultOptions returns the standard reward shaping.
func DefaultOptions() Options {
	return Options{
		FailureCost:   DefaultFailureCost,
		SuccessReward: DefaultSuccessReward,
		TimeCostMult:  DefaultTimeCostMult,
		FramesPerStep: 1,
	}
}

// Info describes the state after a Reset or Step.
type Info struct {
	Time      float32 `json:"time"`
	Distance  float32 `json:"distance"`
	AvgSpeed  float32 `json:"avgspeed"`
	IsSuccess bool    `json:"is_success"`
	Steps     int     `json:"steps"`
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation Observation
	Frame       types.ObservationFrame
	Reward      float32
	Terminated  bool
	Info        Info
}

// Env drives one simulation through a Commander. Not safe for concurrent use.
type Env struct {
	client  Commander
	opts    Options
	logger  *log.Logger
	actions []types.CommandFlags
	// terminate is the index of the terminate action, or -1.
	terminate int

	seed        uint32
	steps       int
	keys        types.KeyState
	last        types.ObservationFrame
	lastReward  float32
	totalReward float32
}

// New creates an environment.
func New(client Commander, opts Options) *Env {
	if opts.FramesPerStep < 1 {
		opts.FramesPerStep = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	e := &Env{
		client:    client,
		opts:      opts,
		logger:    logger,
		actions:   buildActions(opts.ReducedActionSet),
		terminate: -1,
		seed:      opts.Seed,
	}
	if opts.TerminateAction {
		e.actions = append(e.actions, 0)
		e.terminate = len(e.actions) - 1
	}
	return e
}

// NumActions returns the size of the action space.
func (e *Env) NumActions() int {
	return len(e.actions)
}

// ActionFlags returns the key bits of action a.
func (e *Env) ActionFlags(a int) (types.CommandFlags, error) {
	if a < 0 || a >= len(e.actions) {
		return 0, fmt.Errorf("%w: %d (have %d)", ErrInvalidAction, a, len(e.actions))
	}
	return e.actions[a], nil
}

// TerminateAction returns the index of the terminate action, if enabled.
func (e *Env) TerminateAction() (int, bool) {
	return e.terminate, e.terminate >= 0
}

// Seed returns the current simulation seed.
func (e *Env) Seed() uint32 {
	return e.seed
}

// TotalReward returns the reward accumulated in the current episode.
func (e *Env) TotalReward() float32 {
	return e.totalReward
}

// Steps returns the number of steps in the current episode.
func (e *Env) Steps() int {
	return e.steps
}

// Reset starts a new episode. A non-nil seed reloads the simulation with it.
func (e *Env) Reset(ctx context.Context, seed *uint32) (Observation, Info, error) {
	e.steps = 0
	e.keys = types.KeyState{}
	e.last = types.ObservationFrame{}
	e.lastReward, e.totalReward = 0, 0

	reload := e.opts.ReloadOnReset
	if seed != nil {
		e.seed = *seed
		reload = true
	}
	if reload {
		if err := e.client.Reload(ctx, e.seed); err != nil {
			return Observation{}, Info{}, fmt.Errorf("reload: %w", err)
		}
	}

	reply, err := e.client.Do(ctx, types.Command{Flags: types.CmdReset})
	if err != nil {
		return Observation{}, Info{}, fmt.Errorf("reset: %w", err)
	}
	if reply.Observation == nil {
		return Observation{}, Info{}, fmt.Errorf("reset: %w: %s", controller.ErrUnexpectedReply, reply.Header)
	}
	e.last = *reply.Observation
	return Normalize(e.last), e.info(e.last), nil
}

// Step applies action for one step and returns the shaped reward.
func (e *Env) Step(ctx context.Context, action int) (StepResult, error) {
	keys, err := e.ActionFlags(action)
	if err != nil {
		return StepResult{}, err
	}
	e.steps++

	flags := types.CmdStep | keys
	if e.opts.AutoDraw {
		flags |= types.CmdDraw
	}
	cmd := types.Command{
		Flags: flags,
		Stats: &types.CommandStats{
			Step:        uint16(min(e.steps, math.MaxUint16)),
			Reward:      e.lastReward,
			TotalReward: e.totalReward,
		},
	}
	reply, err := e.client.Do(ctx, cmd)
	if err != nil {
		return StepResult{}, fmt.Errorf("step %d: %w", e.steps, err)
	}
	if reply.Observation == nil {
		return StepResult{}, fmt.Errorf("step %d: %w: %s", e.steps, controller.ErrUnexpectedReply, reply.Header)
	}
	frame := *reply.Observation
	e.keys = types.KeyStateFromFlags(keys)

	reward := e.reward(frame, e.last)
	e.lastReward = reward
	e.totalReward += reward
	e.last = frame

	return StepResult{
		Observation: Normalize(frame),
		Frame:       frame,
		Reward:      reward,
		Terminated:  frame.Ended() || action == e.terminate,
		Info:        e.info(frame),
	}, nil
}

// reward is speed bonus minus time cost, plus the terminal bonus or cost.
func (e *Env) reward(cur, prev types.ObservationFrame) float32 {
	dt := cur.Time - prev.Time
	var v float32
	if dt > 0 {
		v = (cur.Distance - prev.Distance) / dt
	}
	r := v*SpeedRewardMult - dt*e.opts.TimeCostMult/float32(e.opts.FramesPerStep)
	if cur.Ended() {
		if cur.Success() {
			r += e.opts.SuccessReward
		} else {
			r -= e.opts.FailureCost
		}
	}
	return r
}

func (e *Env) info(f types.ObservationFrame) Info {
	var avg float32
	if f.Time > 0 {
		avg = f.Distance / f.Time
	}
	return Info{
		Time:      f.Time,
		Distance:  f.Distance,
		AvgSpeed:  avg,
		IsSuccess: f.Success(),
		Steps:     e.steps,
	}
}

// Draw renders the current frame without stepping or changing held keys.
func (e *Env) Draw(ctx context.Context) error {
	_, err := e.client.Do(ctx, types.Command{Flags: types.CmdDraw | e.keys.Flags()})
	return err
}

// Render renders the current frame and returns it as encoded image bytes.
func (e *Env) Render(ctx context.Context) (types.ImageFormat, []byte, error) {
	return e.client.Capture(ctx, e.keys)
}
