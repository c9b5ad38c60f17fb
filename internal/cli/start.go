package cli

import (
	"context"
	"fmt"

	"github.com/harun/shinimi/internal/config"
	"github.com/harun/shinimi/internal/daemon"
	"github.com/harun/shinimi/internal/logger"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Shinimi bot",
	Long: `Start the Shinimi bot in the foreground.
The webhook server listens until SIGINT or SIGTERM, then drains in-flight
messages and exits. Edits to the config file's log level apply without a restart.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if daemon.IsRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := logger.New(loggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	loader.Watch(ctx, func(next *config.Config) {
		if logLevel != "" {
			next.Logging.Level = logLevel
		}
		d.ApplyConfig(next)
	}, func(err error) {
		log.Warn().Err(err).Msg("Ignoring invalid config reload")
	})

	return d.Run(ctx)
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	}
}
