package cli

import (
	"fmt"

	"github.com/harun/shinimi/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up Shinimi.
The wizard asks for the Messenger credentials, the NLU engine and the weather
and translation keys, then writes the config file.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	wizard := config.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout())

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "\nYou can now start Shinimi with: shinimi start")

	return nil
}
