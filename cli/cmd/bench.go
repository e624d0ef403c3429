package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/cli/config"
	"github.com/smanolloff/qwop-gym/cli/render"
	"github.com/smanolloff/qwop-gym/controller"
	"github.com/smanolloff/qwop-gym/env"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
)

// BenchResult is the response for the bench command.
type BenchResult struct {
	Steps          int     `json:"steps" yaml:"steps"`
	Episodes       int     `json:"episodes" yaml:"episodes"`
	ElapsedSeconds float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	StepsPerSecond float64 `json:"steps_per_second" yaml:"steps_per_second"`
}

// BenchCommand returns the bench command.
func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure steps per second through a controller connection",
		Flags: concat(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "endpoint",
					Aliases: []string{"e"},
					Usage:   "Relay endpoint to connect to",
				},
				&cli.IntFlag{
					Name:  "steps",
					Usage: "Number of steps to run",
					Value: 1000,
				},
				&cli.UintFlag{
					Name:  "seed",
					Usage: "Random policy seed",
				},
				FormatFlag,
				NoColorFlag,
			},
			RuntimeFlags(),
		),
		Action: benchAction,
	}
}

func benchAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Int("steps") <= 0 {
		return cli.Exit("--steps must be positive", exitConfigError)
	}
	logger, closeLog, err := newLogger(cfg, "bench")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	collector := metrics.NewCollector("controller", "")
	client, err := controller.Dial(ctx, cfg.Endpoint, controllerOptions(cfg, logger, collector))
	if err != nil {
		return exitForError(err)
	}
	defer func() { _ = client.Close() }()

	res, err := runBench(ctx, env.New(client, benchEnvOptions(cfg, logger)), c.Int("steps"), uint64(cfg.Seed))
	if err != nil {
		return exitForError(err)
	}
	return r.Render(res)
}

// runBench steps e with uniformly random actions, resetting after each
// terminated episode.
func runBench(ctx context.Context, e *env.Env, steps int, seed uint64) (BenchResult, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	if _, _, err := e.Reset(ctx, nil); err != nil {
		return BenchResult{}, err
	}

	start := time.Now()
	var res BenchResult
	for res.Steps < steps {
		step, err := e.Step(ctx, rng.IntN(e.NumActions()))
		if err != nil {
			return res, fmt.Errorf("bench: %w", err)
		}
		res.Steps++
		if step.Terminated {
			res.Episodes++
			if _, _, err := e.Reset(ctx, nil); err != nil {
				return res, err
			}
		}
	}
	elapsed := time.Since(start)
	res.ElapsedSeconds = elapsed.Seconds()
	if elapsed > 0 {
		res.StepsPerSecond = float64(res.Steps) / elapsed.Seconds()
	}
	return res, nil
}

// benchEnvOptions keeps the configured shaping but never reloads.
func benchEnvOptions(cfg *config.Config, logger *log.Logger) env.Options {
	opts := cfg.EnvOptions()
	opts.Logger = logger
	opts.ReloadOnReset = false
	return opts
}

func controllerOptions(cfg *config.Config, logger *log.Logger, collector *metrics.Collector) controller.Options {
	return controller.Options{
		HandshakeTimeout: cfg.HandshakeTimeout.Duration,
		ReplyTimeout:     cfg.ReplyTimeout.Duration,
		Logger:           logger,
		Metrics:          collector,
	}
}
