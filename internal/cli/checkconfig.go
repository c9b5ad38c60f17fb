package cli

import (
	"fmt"

	"github.com/harun/shinimi/internal/config"
	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration",
	Long: `Load the config file and environment, validate them and print the
effective configuration with secrets masked.`,
	RunE: runCheckConfig,
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	warnings := config.NewValidator().ValidateConfig(cfg)
	for _, w := range warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "Warning: %v\n", w)
	}
	if len(warnings) > 0 {
		return fmt.Errorf("configuration has %d problem(s)", len(warnings))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
	return nil
}
