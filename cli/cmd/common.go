package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/smanolloff/qwop-gym/adapter"
	"github.com/smanolloff/qwop-gym/adapter/redis"
	"github.com/smanolloff/qwop-gym/adapter/webhook"
	"github.com/smanolloff/qwop-gym/cli/config"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/transport"
)

// Exit codes.
const (
	exitSuccess          = 0
	exitError            = 1
	exitTransportFailure = 2
	exitConfigError      = 3
)

// loadConfig reads --config (or defaults), applies flag overrides and
// validates the result. Failures exit with exitConfigError.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	applyOverrides(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid config: %v", err), exitConfigError)
	}
	return cfg, nil
}

// applyOverrides copies every set flag over its config value. Flags a
// command does not define are never set.
func applyOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("endpoint") {
		cfg.Endpoint = c.String("endpoint")
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("seed") {
		cfg.Seed = uint32(c.Uint("seed"))
	}
	if c.IsSet("steps-per-command") {
		cfg.Step.StepsPerCommand = c.Int("steps-per-command")
	}
	if c.IsSet("timestep") {
		cfg.Step.TimestepSeconds = c.Float64("timestep")
	}
	if c.IsSet("success-distance") {
		cfg.Episode.SuccessDistance = c.Float64("success-distance")
	}
	if c.IsSet("ended-distance") {
		cfg.Episode.EndedDistance = c.Float64("ended-distance")
	}
	if c.IsSet("negative-ended-distance") {
		cfg.Episode.NegativeEndedDistance = c.Float64("negative-ended-distance")
	}
	if c.IsSet("image-format") {
		cfg.Image.Format = c.String("image-format")
	}
	if c.IsSet("image-quality") {
		cfg.Image.Quality = c.Int("image-quality")
	}
	if c.IsSet("storage-backend") {
		cfg.Recording.Backend = c.String("storage-backend")
	}
	if c.IsSet("storage-path") {
		cfg.Recording.Path = c.String("storage-path")
	}
	if c.IsSet("dataset") {
		cfg.Recording.Dataset = c.String("dataset")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
}

// newLogger builds the process logger for role. Entries go to stderr and,
// when log.file is set, to a rotated file as well. The returned func closes
// the file.
func newLogger(cfg *config.Config, role string) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitConfigError)
	}
	logger := log.NewLoggerLevel(log.NewSession(role), level)
	fileCfg, ok := cfg.LogFile()
	if !ok {
		return logger, func() { _ = logger.Sync() }, nil
	}
	fw := log.NewFileWriter(fileCfg)
	logger = logger.WithOutput(io.MultiWriter(os.Stderr, fw))
	return logger, func() {
		_ = logger.Sync()
		_ = fw.Close()
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newAdapter builds the configured event adapter, or nil when none is set.
func newAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	var (
		a   adapter.Adapter
		err error
	)
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		a, err = webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: cfg.Retries,
			Secret:  cfg.Secret,
		})
	case "redis":
		a, err = redis.New(redis.Config{
			URL:          cfg.URL,
			Channel:      cfg.Channel,
			Timeout:      cfg.Timeout.Duration,
			Retries:      cfg.Retries,
			Stream:       cfg.Stream,
			StreamMaxLen: cfg.StreamMaxLen,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// exitForError maps a protocol error to an exit code. A cancelled context
// means the user stopped the command and is not a failure.
func exitForError(err error) error {
	var exitCoder cli.ExitCoder
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.As(err, &exitCoder):
		return err
	case transport.IsTransportError(err):
		return cli.Exit(err.Error(), exitTransportFailure)
	default:
		return cli.Exit(err.Error(), exitError)
	}
}
