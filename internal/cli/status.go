package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/harun/shinimi/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bot status",
	Long:  `Show whether the Shinimi bot is running, with its PID and uptime.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	pidFile := daemon.PIDFilePath(cfg.DataDir)

	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessAlive(pid) {
		fmt.Fprintln(cmd.OutOrStdout(), "Status: stopped")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Status: running")
	fmt.Fprintf(cmd.OutOrStdout(), "PID: %d\n", pid)

	// the PID file is written once at start
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Webhook: http://%s/webhook\n", cfg.Addr())

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
