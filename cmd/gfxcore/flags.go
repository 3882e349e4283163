package main

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v3"
	"github.com/vkngwrapper/gfxcore/config"
	"golang.org/x/exp/slog"
)

var (
	configPath string
	logLevel   string
	jsonOutput bool
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "yaml file of driver flags, applied before GFXCORE_* environment overrides",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "print results as json",
			Destination: &jsonOutput,
		},
	}
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, errors.Newf("unknown log level %q", logLevel)
	}
	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr)), nil
}

// loadFlags resolves the driver flags: defaults, then the config file, then the environment
func loadFlags(logger *slog.Logger) (config.Flags, error) {
	flags := config.Default()
	if configPath != "" {
		var err error
		flags, err = config.Load(configPath)
		if err != nil {
			return config.Flags{}, err
		}
	}
	return config.FromEnv(flags, logger), nil
}
