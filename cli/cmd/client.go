package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/cli/config"
	"github.com/smanolloff/qwop-gym/dispatch"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/sim/ragdoll"
	"github.com/smanolloff/qwop-gym/transport"
)

// ClientCommand returns the client command: it connects to a relay or
// controller and answers commands with the ragdoll simulation.
func ClientCommand() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "Serve commands with the ragdoll simulation",
		Flags: concat(
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "endpoint",
					Aliases: []string{"e"},
					Usage:   "Websocket endpoint to connect to",
				},
			},
			simulationFlags(),
			RuntimeFlags(),
		),
		Action: clientAction,
	}
}

func clientAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, "client")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	collector := metrics.NewCollector("client", "")
	err = serveClient(ctx, cfg, logger, collector)
	logger.Info("client stopped", map[string]any{"metrics": collector.Snapshot()})
	return exitForError(err)
}

// serveClient runs one client session until the peer closes the
// connection or ctx is done.
func serveClient(ctx context.Context, cfg *config.Config, logger *log.Logger, collector *metrics.Collector) error {
	model := ragdoll.New(uint64(cfg.Seed))
	opts := cfg.DispatchOptions()
	opts.Frames = model
	opts.Logger = logger
	opts.Metrics = collector
	d, err := dispatch.New(model, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid simulation config: %v", err), exitConfigError)
	}

	ch := transport.NewChannel(d, transport.Options{
		HandshakeTimeout: cfg.HandshakeTimeout.Duration,
		Logger:           logger,
		Metrics:          collector,
	})
	if err := ch.Connect(ctx, cfg.Endpoint); err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	logger.Info("serving simulation", map[string]any{
		"endpoint":          cfg.Endpoint,
		"seed":              cfg.Seed,
		"steps_per_command": cfg.Step.StepsPerCommand,
	})
	return ch.Run(ctx)
}
