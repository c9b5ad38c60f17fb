package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with fresh flag values and captured output
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel, stopTimeout = "", "", 30

	cmd := GetRootCmd()
	resetHelp(cmd)
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

// writeConfig writes a complete config file and returns its path and data dir
func writeConfig(t *testing.T, overrides map[string]interface{}) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	cfg := map[string]interface{}{
		"messenger": map[string]interface{}{
			"page_token":   "EAAtoken1234567",
			"app_secret":   "app-secret-123",
			"verify_token": "verify-token",
		},
		"nlu":       map[string]interface{}{"provider": "pattern"},
		"weather":   map[string]interface{}{"api_key": "owm-key-123"},
		"translate": map[string]interface{}{"api_key": "translate-key"},
		"data_dir":  dataDir,
	}
	for k, v := range overrides {
		cfg[k] = v
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "shinimi.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path, dataDir
}

func hasCommand(name string) bool {
	for _, c := range GetRootCmd().Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

// resetHelp clears --help and --version left set by an earlier execute on the
// shared command tree
func resetHelp(cmd *cobra.Command) {
	for _, name := range []string{"help", "version"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Value.Type() == "bool" {
			_ = f.Value.Set("false")
			f.Changed = false
		}
	}
	for _, c := range cmd.Commands() {
		resetHelp(c)
	}
}
