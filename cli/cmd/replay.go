package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/cli/render"
	"github.com/smanolloff/qwop-gym/controller"
	"github.com/smanolloff/qwop-gym/env"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/recording"
)

// DefaultReplayTolerance is the distance difference still counted as a match.
const DefaultReplayTolerance = 0.01

// ReplayCommand returns the replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Replay recorded episodes and compare the outcome",
		ArgsUsage: "[episode-id...]",
		Flags: concat(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "endpoint",
					Aliases: []string{"e"},
					Usage:   "Relay endpoint to connect to (needs relay --spawn-client)",
				},
				&cli.StringFlag{
					Name:  "session",
					Usage: "Replay every episode of this session",
				},
				&cli.StringFlag{
					Name:  "day",
					Usage: "Replay every episode of this day (YYYY-MM-DD)",
				},
				&cli.Float64Flag{
					Name:  "tolerance",
					Usage: "Distance difference still counted as a match",
					Value: DefaultReplayTolerance,
				},
				FormatFlag,
				NoColorFlag,
			},
			recordingFlags(),
			RuntimeFlags(),
		),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, "replay")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	ds, _, err := openDataset(ctx, cfg)
	if err != nil {
		return err
	}
	var episodes []recording.EpisodeSummary
	if c.NArg() > 0 {
		for _, id := range c.Args().Slice() {
			ep, err := recording.FindEpisode(ctx, ds, id)
			if err != nil {
				return cli.Exit(err.Error(), exitError)
			}
			episodes = append(episodes, ep)
		}
	} else {
		episodes, err = recording.ReadEpisodes(ctx, ds, recording.Filter{
			Session: c.String("session"),
			Day:     c.String("day"),
		})
		if err != nil {
			return err
		}
	}
	if len(episodes) == 0 {
		return cli.Exit("no episodes to replay", exitError)
	}

	collector := metrics.NewCollector("controller", "")
	client, err := controller.Dial(ctx, cfg.Endpoint, controllerOptions(cfg, logger, collector))
	if err != nil {
		return exitForError(err)
	}
	defer func() { _ = client.Close() }()

	envOpts := cfg.EnvOptions()
	envOpts.Logger = logger
	rows, err := replayEpisodes(ctx, env.New(client, envOpts), episodes, float32(c.Float64("tolerance")), logger)
	if err != nil {
		return exitForError(err)
	}
	return r.Render(render.ReplayList(rows))
}

// replayEpisodes replays each episode in turn and compares it with the
// recording.
func replayEpisodes(ctx context.Context, p recording.Player, episodes []recording.EpisodeSummary, tolerance float32, logger *log.Logger) ([]render.ReplayRow, error) {
	rows := make([]render.ReplayRow, 0, len(episodes))
	for _, ep := range episodes {
		res, err := recording.Replay(ctx, p, ep, nil)
		if err != nil {
			return rows, err
		}
		row := render.ReplayRow{
			ReplayResult:     res,
			RecordedDistance: ep.Distance,
			Match:            res.Matches(ep, tolerance),
		}
		if !row.Match {
			logger.Warn("replay diverged", map[string]any{
				"episode_id":        ep.EpisodeID,
				"distance":          res.Distance,
				"recorded_distance": ep.Distance,
				"steps":             res.Steps,
				"recorded_steps":    ep.Steps,
			})
		}
		rows = append(rows, row)
	}
	return rows, nil
}
