// Package dispatch turns one command message into a fixed sequence of
// simulation calls and exactly one reply.
//
// Application order per command:
//  1. reset: release all keys, then reset the simulation
//  2. keys: press each key whose bit is set, release the others
//  3. step: advance StepsPerCommand timesteps
//  4. draw: render the current frame
//  5. reply: an image when requested, otherwise an observation
//
// A failure at any stage keeps earlier mutations and replaces the reply with
// an ERR message built by the ErrorReporter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/smanolloff/qwop-gym/imaging"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/observation"
	"github.com/smanolloff/qwop-gym/sim"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// DefaultTimestep is one frame at 30 frames per second.
const DefaultTimestep = 1.0 / 30

// ErrNoFrameSource is returned for image requests when no FrameSource is wired.
var ErrNoFrameSource = errors.New("image capture requested but no frame source configured")

// Config controls stepping.
type Config struct {
	// StepTimestep is the simulated seconds advanced per timestep.
	StepTimestep float64
	// StepsPerCommand is the number of timesteps one step command advances.
	StepsPerCommand int
}

// DefaultConfig returns a 1/30 s timestep, one timestep per command.
func DefaultConfig() Config {
	return Config{StepTimestep: DefaultTimestep, StepsPerCommand: 1}
}

// Validate checks the stepping parameters.
func (c Config) Validate() error {
	if !(c.StepTimestep > 0) || math.IsInf(c.StepTimestep, 0) {
		return fmt.Errorf("step timestep must be positive, got %v", c.StepTimestep)
	}
	if c.StepsPerCommand < 1 {
		return fmt.Errorf("steps per command must be at least 1, got %d", c.StepsPerCommand)
	}
	return nil
}

// Result is the outcome of one command: either a reply or an error.
type Result struct {
	Reply wire.Message
	Err   error
}

// OK reports whether the command produced its reply.
func (r Result) OK() bool {
	return r.Err == nil
}

// Message returns the reply, or the ERR message substituting for it.
func (r Result) Message() wire.Message {
	if r.Err != nil {
		return wire.EncodeError(FormatError(r.Err))
	}
	return r.Reply
}

// Options configures a Dispatcher.
type Options struct {
	Config      Config
	Policy      observation.Policy
	ImageFormat types.ImageFormat
	// ImageQuality applies to JPEG; zero selects imaging.DefaultQuality.
	ImageQuality int
	// Frames serves image requests. Nil makes them fail with ErrNoFrameSource.
	Frames  sim.FrameSource
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Dispatcher applies commands to a simulation. It is the single owner of the
// simulation's mutable state; Handle must not be called concurrently.
type Dispatcher struct {
	sim     sim.Simulation
	frames  sim.FrameSource
	cfg     Config
	obs     *observation.Encoder
	img     *imaging.Encoder
	logger  *log.Logger
	metrics *metrics.Collector

	// Debug view, readable from other goroutines.
	mu        sync.Mutex
	keys      types.KeyState
	lastStats *types.CommandStats
	steps     uint64
}

// New creates a dispatcher driving s.
func New(s sim.Simulation, opts Options) (*Dispatcher, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		sim:     s,
		frames:  opts.Frames,
		cfg:     opts.Config,
		obs:     observation.NewEncoder(opts.Policy),
		img:     imaging.NewEncoder(opts.ImageFormat, opts.ImageQuality),
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Handle decodes a CMD payload and applies it.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) Result {
	d.metrics.IncCommand()
	cmd, err := wire.DecodeCommand(payload)
	if err != nil {
		d.metrics.IncDecodeError()
		return Result{Err: &DispatchError{Stage: StageDecode, Err: err}}
	}
	res := d.Apply(ctx, cmd)
	if res.Err != nil {
		d.metrics.IncDispatchError()
	}
	return res
}

// Apply executes a decoded command in the fixed stage order.
func (d *Dispatcher) Apply(ctx context.Context, cmd types.Command) Result {
	d.logger.Debug("applying command", map[string]any{"flags": cmd.Flags.String()})
	if cmd.Stats != nil {
		stats := *cmd.Stats
		d.mu.Lock()
		d.lastStats = &stats
		d.mu.Unlock()
	}

	if cmd.Flags.Has(types.CmdReset) {
		err := guard(StageReset, func() error {
			if err := d.setKeys(types.KeyState{}); err != nil {
				return err
			}
			return d.sim.Reset()
		})
		if err != nil {
			return Result{Err: err}
		}
	}

	if err := guard(StageKeys, func() error {
		return d.setKeys(types.KeyStateFromFlags(cmd.Flags))
	}); err != nil {
		return Result{Err: err}
	}

	if cmd.Flags.Has(types.CmdStep) {
		if err := guard(StageStep, d.step); err != nil {
			return Result{Err: err}
		}
	}

	if cmd.Flags.Has(types.CmdDraw) {
		if err := guard(StageDraw, d.sim.Render); err != nil {
			return Result{Err: err}
		}
	}

	var reply wire.Message
	if cmd.Flags.Has(types.CmdImage) {
		err := guard(StageImage, func() error {
			if d.frames == nil {
				return ErrNoFrameSource
			}
			msg, err := d.img.Capture(ctx, d.frames)
			reply = msg
			return err
		})
		if err != nil {
			return Result{Err: err}
		}
		d.metrics.IncImage()
		return Result{Reply: reply}
	}

	err := guard(StageObserve, func() error {
		msg, err := d.obs.Encode(d.sim)
		reply = msg
		return err
	})
	if err != nil {
		return Result{Err: err}
	}
	d.metrics.IncObservation()
	return Result{Reply: reply}
}

// setKeys mirrors every key into the simulation. Each key is set exactly once.
func (d *Dispatcher) setKeys(ks types.KeyState) error {
	for _, k := range types.Keys {
		var err error
		if ks[k] {
			err = d.sim.PressKey(k)
		} else {
			err = d.sim.ReleaseKey(k)
		}
		if err != nil {
			return fmt.Errorf("key %s: %w", k, err)
		}
		d.mu.Lock()
		d.keys[k] = ks[k]
		d.mu.Unlock()
	}
	return nil
}

func (d *Dispatcher) step() error {
	for i := 0; i < d.cfg.StepsPerCommand; i++ {
		if err := d.sim.Step(d.cfg.StepTimestep); err != nil {
			return err
		}
		d.mu.Lock()
		d.steps++
		d.mu.Unlock()
		d.metrics.AddSteps(1)
	}
	return nil
}

// Keys returns the key state set by the most recent command.
func (d *Dispatcher) Keys() types.KeyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys
}

// LastStats returns the stats block of the most recent command carrying one.
func (d *Dispatcher) LastStats() (types.CommandStats, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastStats == nil {
		return types.CommandStats{}, false
	}
	return *d.lastStats, true
}

// Steps returns the total number of timesteps applied.
func (d *Dispatcher) Steps() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steps
}

// Config returns the stepping configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}
