package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		output, err := execute(t, "", "--version")
		require.NoError(t, err)

		assert.Contains(t, output, "shinimi version")
		assert.Contains(t, output, GetVersion())
	})

	t.Run("version command", func(t *testing.T) {
		output, err := execute(t, "", "version")
		require.NoError(t, err)
		assert.Equal(t, "shinimi version "+GetVersion()+"\n", output)
	})

	t.Run("help flag", func(t *testing.T) {
		output, err := execute(t, "", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "Shinimi")
		assert.Contains(t, output, "Messenger")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "", logLevelFlag.DefValue)
	})

	t.Run("subcommands", func(t *testing.T) {
		for _, name := range []string{"start", "stop", "status", "configure", "check-config", "version"} {
			assert.True(t, hasCommand(name), "%s command should exist", name)
		}
	})
}

func TestLoadConfigLogLevelOverride(t *testing.T) {
	path, _ := writeConfig(t, nil)

	cfgFile, logLevel = path, "debug"
	cfg, loader, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, path, loader.GetConfigPath())

	logLevel = "chatty"
	_, _, err = loadConfig()
	assert.ErrorContains(t, err, "invalid log level")

	cfgFile, logLevel = "", ""
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
