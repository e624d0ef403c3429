package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/adapter"
	"github.com/smanolloff/qwop-gym/cli/render"
	"github.com/smanolloff/qwop-gym/controller"
	"github.com/smanolloff/qwop-gym/env"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/recording"
)

// RecordCommand returns the record command.
func RecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Play random-policy episodes and record them",
		Flags: concat(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "endpoint",
					Aliases: []string{"e"},
					Usage:   "Relay endpoint to connect to",
				},
				&cli.IntFlag{
					Name:    "episodes",
					Aliases: []string{"n"},
					Usage:   "Number of episodes to record",
					Value:   10,
				},
				&cli.IntFlag{
					Name:  "max-steps",
					Usage: "Truncate episodes after this many steps",
					Value: 1000,
				},
				&cli.UintFlag{
					Name:  "seed",
					Usage: "Seed of the first episode; later episodes add one",
				},
				&cli.BoolFlag{
					Name:  "reload",
					Usage: "Reload the simulation with each episode's seed (needs relay --spawn-client)",
					Value: true,
				},
				&cli.StringFlag{
					Name:  "session",
					Usage: "Recording session partition (default: random)",
				},
				&cli.BoolFlag{
					Name:  "traces",
					Usage: "Store a msgpack trace per episode",
				},
				FormatFlag,
				NoColorFlag,
			},
			recordingFlags(),
			RuntimeFlags(),
		),
		Action: recordAction,
	}
}

type recordOptions struct {
	Episodes int
	MaxSteps int
	Seed     uint32
	Reload   bool
	Policy   *rand.Rand
}

func recordAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Int("episodes") <= 0 || c.Int("max-steps") <= 0 {
		return cli.Exit("--episodes and --max-steps must be positive", exitConfigError)
	}
	if c.IsSet("traces") {
		cfg.Recording.Traces = c.Bool("traces")
	}
	logger, closeLog, err := newLogger(cfg, "record")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	pub, err := newAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	factory, err := recording.NewStoreFactory(ctx, cfg.StoreConfig())
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	session := c.String("session")
	if session == "" {
		session = "sess-" + uuid.NewString()
	}
	collector := metrics.NewCollector("controller", session)
	rec, err := recording.NewRecorder(recording.Config{
		Dataset:    cfg.Recording.Dataset,
		Session:    session,
		FlushSteps: cfg.Recording.FlushSteps,
		Traces:     cfg.Recording.Traces,
	}, factory, recording.Options{Logger: logger, Metrics: collector})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	client, err := controller.Dial(ctx, cfg.Endpoint, controllerOptions(cfg, logger, collector))
	if err != nil {
		return exitForError(err)
	}
	defer func() { _ = client.Close() }()

	envOpts := cfg.EnvOptions()
	envOpts.Logger = logger
	e := env.New(client, envOpts)

	seed := uint64(cfg.Seed)
	episodes, err := recordEpisodes(ctx, e, rec, pub, recordOptions{
		Episodes: c.Int("episodes"),
		MaxSteps: c.Int("max-steps"),
		Seed:     cfg.Seed,
		Reload:   c.Bool("reload"),
		Policy:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, logger)
	if closeErr := rec.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	logger.Info("recording finished", map[string]any{
		"session":  session,
		"episodes": len(episodes),
		"metrics":  collector.Snapshot(),
	})
	if err != nil {
		return exitForError(err)
	}
	return r.Render(render.EpisodeList(episodes))
}

// recordEpisodes plays opts.Episodes random-policy episodes on e, records
// each one and publishes its completion through pub when pub is non-nil.
// Publish failures are logged and do not stop recording.
func recordEpisodes(ctx context.Context, e *env.Env, rec *recording.Recorder, pub adapter.Adapter, opts recordOptions, logger *log.Logger) ([]recording.EpisodeSummary, error) {
	var out []recording.EpisodeSummary
	for i := range opts.Episodes {
		var seedPtr *uint32
		if opts.Reload {
			seed := opts.Seed + uint32(i)
			seedPtr = &seed
		}
		if _, _, err := e.Reset(ctx, seedPtr); err != nil {
			return out, fmt.Errorf("episode %d: %w", i+1, err)
		}
		rec.Begin(e.Seed())

		for range opts.MaxSteps {
			action := opts.Policy.IntN(e.NumActions())
			res, err := e.Step(ctx, action)
			if err != nil {
				return out, fmt.Errorf("episode %d: %w", i+1, err)
			}
			keys, _ := e.ActionFlags(action)
			if err := rec.Step(ctx, action, keys, res); err != nil {
				return out, err
			}
			if res.Terminated {
				break
			}
		}

		ep, err := rec.End(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, ep)

		if pub == nil {
			continue
		}
		var storagePath string
		if rec.Config().Traces {
			storagePath = recording.TracePath(rec.Config().Dataset, ep)
		}
		if err := pub.Publish(ctx, adapter.NewEpisodeCompletedEvent(ep, storagePath)); err != nil {
			logger.Warn("failed to publish episode", map[string]any{
				"episode_id": ep.EpisodeID,
				"error":      err.Error(),
			})
		}
	}
	return out, nil
}
