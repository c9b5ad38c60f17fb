package cli

import (
	"fmt"

	"github.com/harun/shinimi/internal/config"
	"github.com/harun/shinimi/internal/daemon"
	"github.com/spf13/cobra"
)

const version = daemon.Version

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shinimi",
	Short: "Shinimi - Messenger chat bot",
	Long: `Shinimi is a Messenger chat bot. It receives messages through the
Messenger webhook, lets an NLU engine pick actions (greetings, jokes, weather,
local time, translation) and sends the replies back to the user.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.shinimi/shinimi.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// loadConfig reads the config file and environment and applies --log-level
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		if err := config.NewValidator().ValidateLogLevel(logLevel); err != nil {
			return nil, nil, err
		}
		cfg.Logging.Level = logLevel
	}
	return cfg, loader, nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
