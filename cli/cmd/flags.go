// Package cmd provides CLI commands for the qwopgym binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for episodes stats and episodes inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats, inspect only)",
	}
)

// Shared flags for commands that touch the protocol or storage.
var (
	// ConfigFlag points at a qwopgym.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file",
		EnvVars: []string{"QWOPGYM_CONFIG"},
	}

	// LogLevelFlag overrides log.level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}

	// LogFileFlag overrides log.file.
	LogFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Also write logs to this size-rotated file",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can give an explicit error
// instead of a generic "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// RuntimeFlags returns the config and logging flags.
func RuntimeFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFileFlag,
	}
}

// recordingFlags override the recording section.
func recordingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Recording backend: fs, s3, memory",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Directory (fs) or bucket/prefix (s3)",
		},
		&cli.StringFlag{
			Name:  "dataset",
			Usage: "Recording dataset id",
		},
	}
}

// simulationFlags override the step, episode and image sections.
func simulationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{
			Name:  "seed",
			Usage: "Simulation seed",
		},
		&cli.IntFlag{
			Name:  "steps-per-command",
			Usage: "Simulation steps per step command",
		},
		&cli.Float64Flag{
			Name:  "timestep",
			Usage: "Simulation timestep in seconds",
		},
		&cli.Float64Flag{
			Name:  "success-distance",
			Usage: "Distance at which an episode succeeds",
		},
		&cli.Float64Flag{
			Name:  "ended-distance",
			Usage: "Distance at which an episode ends",
		},
		&cli.Float64Flag{
			Name:  "negative-ended-distance",
			Usage: "Backwards distance at which an episode ends",
		},
		&cli.StringFlag{
			Name:  "image-format",
			Usage: "IMG encoding: jpeg, png",
		},
		&cli.IntFlag{
			Name:  "image-quality",
			Usage: "JPEG quality 1..100",
		},
	}
}

func concat(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
