package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/smanolloff/qwop-gym/dispatch"
	"github.com/smanolloff/qwop-gym/env"
	"github.com/smanolloff/qwop-gym/imaging"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/observation"
	"github.com/smanolloff/qwop-gym/recording"
	"github.com/smanolloff/qwop-gym/types"
)

// Defaults for the connection settings.
const (
	DefaultEndpoint         = "ws://127.0.0.1:8081/"
	DefaultListen           = "127.0.0.1:8081"
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultReplyTimeout     = 10 * time.Second
	DefaultReadyTimeout     = 60 * time.Second
)

// Config represents a qwopgym.yaml file. CLI flags override its values.
type Config struct {
	Endpoint         string          `yaml:"endpoint"`
	Listen           string          `yaml:"listen"`
	Seed             uint32          `yaml:"seed"`
	Step             StepConfig      `yaml:"step"`
	Episode          EpisodeConfig   `yaml:"episode"`
	Image            ImageConfig     `yaml:"image"`
	Reward           RewardConfig    `yaml:"reward"`
	HandshakeTimeout Duration        `yaml:"handshake_timeout"`
	ReplyTimeout     Duration        `yaml:"reply_timeout"`
	ReadyTimeout     Duration        `yaml:"ready_timeout"`
	Recording        RecordingConfig `yaml:"recording"`
	Adapter          AdapterConfig   `yaml:"adapter"`
	Log              LogConfig       `yaml:"log"`
}

// StepConfig controls how far one step command advances the simulation.
type StepConfig struct {
	TimestepSeconds float64 `yaml:"timestep_seconds"`
	StepsPerCommand int     `yaml:"steps_per_command"`
}

// EpisodeConfig holds the episode thresholds.
type EpisodeConfig struct {
	EndedDistance         float64 `yaml:"ended_distance"`
	NegativeEndedDistance float64 `yaml:"negative_ended_distance"`
	SuccessDistance       float64 `yaml:"success_distance"`
}

// ImageConfig selects the IMG encoding.
type ImageConfig struct {
	Format  string `yaml:"format"`
	Quality int    `yaml:"quality"`
}

// RewardConfig shapes rewards in the environment.
type RewardConfig struct {
	FailureCost      float32 `yaml:"failure_cost"`
	SuccessReward    float32 `yaml:"success_reward"`
	TimeCostMult     float32 `yaml:"time_cost_mult"`
	AutoDraw         bool    `yaml:"auto_draw"`
	ReducedActionSet bool    `yaml:"reduced_action_set"`
	TerminateAction  bool    `yaml:"terminate_action"`
}

// RecordingConfig selects where episodes are stored.
type RecordingConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	FlushSteps  int    `yaml:"flush_steps"`
	Traces      bool   `yaml:"traces"`
}

// AdapterConfig configures episode notifications. An empty Type disables them.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries int               `yaml:"retries"`
	// Secret signs webhook bodies.
	Secret string `yaml:"secret,omitempty"`
	// Stream and StreamMaxLen add a redis stream next to pub/sub.
	Stream       string `yaml:"stream,omitempty"`
	StreamMaxLen int64  `yaml:"stream_max_len,omitempty"`
}

// LogConfig sets the log level and an optional rotated log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Duration wraps time.Duration for YAML strings like "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	policy := observation.DefaultPolicy()
	step := dispatch.DefaultConfig()
	reward := env.DefaultOptions()
	return &Config{
		Endpoint: DefaultEndpoint,
		Listen:   DefaultListen,
		Step: StepConfig{
			TimestepSeconds: step.StepTimestep,
			StepsPerCommand: step.StepsPerCommand,
		},
		Episode: EpisodeConfig{
			EndedDistance:         policy.EndedDistance,
			NegativeEndedDistance: policy.NegativeEndedDistance,
			SuccessDistance:       policy.SuccessDistance,
		},
		Image: ImageConfig{Format: types.ImageJPEG.String(), Quality: imaging.DefaultQuality},
		Reward: RewardConfig{
			FailureCost:   reward.FailureCost,
			SuccessReward: reward.SuccessReward,
			TimeCostMult:  reward.TimeCostMult,
		},
		HandshakeTimeout: Duration{DefaultHandshakeTimeout},
		ReplyTimeout:     Duration{DefaultReplyTimeout},
		ReadyTimeout:     Duration{DefaultReadyTimeout},
		Recording: RecordingConfig{
			Backend:    recording.BackendFS,
			Path:       "./episodes",
			Dataset:    recording.DefaultDataset,
			FlushSteps: recording.DefaultFlushSteps,
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 100},
	}
}

// Validate checks every section and joins the problems found.
func (c *Config) Validate() error {
	var errs []error
	if err := c.DispatchConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("step: %w", err))
	}
	if err := c.EpisodePolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("episode: %w", err))
	}
	if _, err := types.ParseImageFormat(c.Image.Format); err != nil {
		errs = append(errs, fmt.Errorf("image: %w", err))
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		errs = append(errs, fmt.Errorf("image: quality must be in 1..100, got %d", c.Image.Quality))
	}
	for name, d := range map[string]Duration{
		"handshake_timeout": c.HandshakeTimeout,
		"reply_timeout":     c.ReplyTimeout,
		"ready_timeout":     c.ReadyTimeout,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if err := c.StoreConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recording: %w", err))
	}
	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter: %s requires a url", c.Adapter.Type))
		}
		if c.Adapter.Retries < 0 {
			errs = append(errs, fmt.Errorf("adapter: retries must be >= 0, got %d", c.Adapter.Retries))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter: unknown type %q", c.Adapter.Type))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	return errors.Join(errs...)
}

// DispatchConfig returns the stepping parameters.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		StepTimestep:    c.Step.TimestepSeconds,
		StepsPerCommand: c.Step.StepsPerCommand,
	}
}

// EpisodePolicy returns the episode thresholds.
func (c *Config) EpisodePolicy() observation.Policy {
	return observation.Policy{
		EndedDistance:         c.Episode.EndedDistance,
		NegativeEndedDistance: c.Episode.NegativeEndedDistance,
		SuccessDistance:       c.Episode.SuccessDistance,
	}
}

// ImageFormat returns the configured format, JPEG if it does not parse.
func (c *Config) ImageFormat() types.ImageFormat {
	f, err := types.ParseImageFormat(c.Image.Format)
	if err != nil {
		return types.ImageJPEG
	}
	return f
}

// DispatchOptions assembles dispatcher options without a frame source.
func (c *Config) DispatchOptions() dispatch.Options {
	return dispatch.Options{
		Config:       c.DispatchConfig(),
		Policy:       c.EpisodePolicy(),
		ImageFormat:  c.ImageFormat(),
		ImageQuality: c.Image.Quality,
	}
}

// EnvOptions returns environment options for the configured reward shaping.
func (c *Config) EnvOptions() env.Options {
	return env.Options{
		FailureCost:      c.Reward.FailureCost,
		SuccessReward:    c.Reward.SuccessReward,
		TimeCostMult:     c.Reward.TimeCostMult,
		FramesPerStep:    c.Step.StepsPerCommand,
		AutoDraw:         c.Reward.AutoDraw,
		ReducedActionSet: c.Reward.ReducedActionSet,
		TerminateAction:  c.Reward.TerminateAction,
		Seed:             c.Seed,
	}
}

// StoreConfig returns the recording storage backend settings.
func (c *Config) StoreConfig() recording.StoreConfig {
	return recording.StoreConfig{
		Backend:      c.Recording.Backend,
		Path:         c.Recording.Path,
		Region:       c.Recording.Region,
		Endpoint:     c.Recording.Endpoint,
		UsePathStyle: c.Recording.S3PathStyle,
	}
}

// LogFile returns the rotated log file settings, or false if none is set.
func (c *Config) LogFile() (log.FileConfig, bool) {
	if c.Log.File == "" {
		return log.FileConfig{}, false
	}
	return log.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}, true
}
