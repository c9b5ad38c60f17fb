package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/shinimi/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Shinimi bot",
	Long: `Stop the running Shinimi bot gracefully.
Sends SIGTERM and waits for the bot to drain; sends SIGKILL after the timeout.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the bot to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	pidFile := daemon.PIDFilePath(cfg.DataDir)

	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			_ = os.Remove(pidFile)
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	_ = os.Remove(pidFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Daemon killed")
	return nil
}
