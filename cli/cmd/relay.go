package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/cli/config"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/relay"
)

// RelayCommand returns the relay command.
func RelayCommand() *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "Pair one simulation client with one controller",
		Flags: concat(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "listen",
					Aliases: []string{"l"},
					Usage:   "Address to listen on",
				},
				&cli.BoolFlag{
					Name:  "spawn-client",
					Usage: "Run the ragdoll client in-process and restart it on reload",
				},
			},
			simulationFlags(),
			RuntimeFlags(),
		),
		Action: relayAction,
	}
}

func relayAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, "relay")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	collector := metrics.NewCollector("relay", "")
	err = runRelay(ctx, cfg, c.Bool("spawn-client"), logger, collector)
	logger.Info("relay stopped", map[string]any{"metrics": collector.Snapshot()})
	return exitForError(err)
}

// runRelay serves until ctx is done.
func runRelay(ctx context.Context, cfg *config.Config, spawn bool, logger *log.Logger, collector *metrics.Collector) error {
	r, err := startRelay(ctx, cfg, spawn, logger, collector)
	if err != nil {
		return err
	}
	defer r.stop()
	<-ctx.Done()
	return ctx.Err()
}

type runningRelay struct {
	srv      *relay.Server
	launcher *relay.LocalLauncher
	endpoint string
}

func (r *runningRelay) stop() {
	if r.launcher != nil {
		r.launcher.Stop()
	}
	r.srv.Shutdown()
}

// startRelay binds cfg.Listen and serves in the background. With spawn, an
// in-process client is launched once the listener is bound.
func startRelay(ctx context.Context, cfg *config.Config, spawn bool, logger *log.Logger, collector *metrics.Collector) (*runningRelay, error) {
	opts := relay.Options{
		Seed:         cfg.Seed,
		ReadyTimeout: cfg.ReadyTimeout.Duration,
		Logger:       logger,
		Metrics:      collector,
	}

	var launcher *relay.LocalLauncher
	if spawn {
		dopts := cfg.DispatchOptions()
		dopts.Logger = logger.With(map[string]any{"component": "local_client"})
		launcher = relay.NewLocalLauncher(ctx, "", dopts)
		opts.Launcher = launcher
	}

	srv := relay.NewServer(opts)
	addr, err := srv.Start(ctx, cfg.Listen)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitTransportFailure)
	}
	r := &runningRelay{srv: srv, launcher: launcher, endpoint: fmt.Sprintf("ws://%s/", addr)}

	if launcher != nil {
		launcher.Endpoint = r.endpoint
		if err := launcher.Launch(ctx, cfg.Seed); err != nil {
			r.stop()
			return nil, fmt.Errorf("spawn client: %w", err)
		}
	}
	return r, nil
}
