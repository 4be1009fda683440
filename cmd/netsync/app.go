package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/energizer-project/netsync/internal/config"
	"github.com/energizer-project/netsync/internal/util"
)

// environment is the state shared by every command once Before has run.
type environment struct {
	configDir string
	logLevel  string
	console   bool

	cfg       *config.Config
	logCloser io.Closer
}

func newApp() *cli.App {
	env := &environment{configDir: "config", console: true}

	return &cli.App{
		Name:    AppName,
		Usage:   "authoritative game-state synchronization over UDP",
		Version: AppVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config-dir",
				Aliases:     []string{"c"},
				Usage:       "Directory holding " + config.DefaultConfigFile,
				EnvVars:     []string{"NETSYNC_CONFIG_DIR"},
				Destination: &env.configDir,
				Value:       env.configDir,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Override the configured log level: trace, debug, info, warn, error",
				EnvVars:     []string{"NETSYNC_LOG_LEVEL"},
				Destination: &env.logLevel,
			},
			&cli.BoolFlag{
				Name:        "log-console",
				Usage:       "Also write human-readable logs to stderr",
				Destination: &env.console,
				Value:       env.console,
			},
		},
		Commands: []*cli.Command{
			serverCmd(env),
			clientCmd(env),
			simCmd(env),
		},
		Before: func(c *cli.Context) error {
			return env.load()
		},
		After: func(c *cli.Context) error {
			if env.logCloser != nil {
				return env.logCloser.Close()
			}
			return nil
		},
	}
}

// load reads configuration, applies flag overrides and sets up logging.
func (e *environment) load() error {
	cfg, err := config.Load(e.configDir)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.SetLogLevel(e.logLevel)
	}

	logCfg := cfg.GetLogging()
	logCfg.Console = e.console
	closer, err := util.InitLogger(logCfg, AppName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	e.logCloser = closer

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Str("config", cfg.Path()).
		Msg("starting netsync")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, ve := range validation.Errors {
			log.Error().Str("field", ve.Field).Msg(ve.Message)
		}
		return fmt.Errorf("configuration validation failed with %d errors", len(validation.Errors))
	}

	e.cfg = cfg
	return nil
}
