package cmd

import (
	"context"
	"errors"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/cli/config"
	"github.com/smanolloff/qwop-gym/cli/render"
	"github.com/smanolloff/qwop-gym/cli/tui"
	"github.com/smanolloff/qwop-gym/recording"
)

// EpisodesCommand returns the episodes command with subcommands.
// All subcommands are read-only.
func EpisodesCommand() *cli.Command {
	return &cli.Command{
		Name:  "episodes",
		Usage: "Query recorded episodes (list, stats, inspect)",
		Subcommands: []*cli.Command{
			episodesListCommand(),
			episodesStatsCommand(),
			episodesInspectCommand(),
		},
	}
}

func episodeQueryFlags() []cli.Flag {
	return concat(
		[]cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "Only episodes from this session",
			},
			&cli.StringFlag{
				Name:  "day",
				Usage: "Only episodes from this day (YYYY-MM-DD)",
			},
			ConfigFlag,
		},
		recordingFlags(),
	)
}

func episodesListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List recorded episodes",
		Flags:  concat(episodeQueryFlags(), ReadOnlyFlags()),
		Action: episodesListAction,
	}
}

func episodesListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for episodes list", exitError)
	}
	episodes, err := queryEpisodes(c)
	if err != nil {
		return err
	}
	return r.Render(render.EpisodeList(episodes))
}

func episodesStatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show aggregated episode statistics",
		Flags:  concat(episodeQueryFlags(), TUIReadOnlyFlags()),
		Action: episodesStatsAction,
	}
}

func episodesStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	episodes, err := queryEpisodes(c)
	if err != nil {
		return err
	}
	stats := recording.Stats(episodes)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewEpisodeStats, &tui.EpisodeStats{Summary: stats, Episodes: episodes})
	}
	return r.Render(stats)
}

func episodesInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show one episode and its trace",
		ArgsUsage: "<episode-id>",
		Flags:     concat(episodeQueryFlags(), TUIReadOnlyFlags()),
		Action:    episodesInspectAction,
	}
}

func episodesInspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("episode id is required", exitError)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()
	ds, factory, err := openDataset(ctx, cfg)
	if err != nil {
		return err
	}

	detail, err := inspectEpisode(ctx, ds, factory, cfg.Recording.Dataset, c.Args().First())
	if err != nil {
		if errors.Is(err, recording.ErrEpisodeNotFound) {
			return cli.Exit(err.Error(), exitError)
		}
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewEpisode, detail)
	}
	return r.Render(detail)
}

// inspectEpisode loads an episode and, when one was stored, its trace.
func inspectEpisode(ctx context.Context, ds lode.Dataset, factory lode.StoreFactory, dataset, id string) (*tui.EpisodeDetail, error) {
	ep, err := recording.FindEpisode(ctx, ds, id)
	if err != nil {
		return nil, err
	}
	detail := &tui.EpisodeDetail{Episode: ep}
	trace, err := recording.ReadTrace(ctx, factory, dataset, ep)
	if err == nil {
		detail.Trace = trace
	} else if !errors.Is(err, recording.ErrNotFound) {
		return nil, err
	}
	return detail, nil
}

func queryEpisodes(c *cli.Context) ([]recording.EpisodeSummary, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	ds, _, err := openDataset(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return recording.ReadEpisodes(ctx, ds, recording.Filter{
		Session: c.String("session"),
		Day:     c.String("day"),
	})
}

// openDataset opens the configured recording dataset. An empty dataset
// name in cfg is replaced by the default.
func openDataset(ctx context.Context, cfg *config.Config) (lode.Dataset, lode.StoreFactory, error) {
	factory, err := recording.NewStoreFactory(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitConfigError)
	}
	if cfg.Recording.Dataset == "" {
		cfg.Recording.Dataset = recording.DefaultDataset
	}
	ds, err := recording.OpenDataset(cfg.Recording.Dataset, factory)
	if err != nil {
		return nil, nil, err
	}
	return ds, factory, nil
}
