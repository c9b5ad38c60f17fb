package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("wit defaults", func(t *testing.T) {
		answers := strings.Join([]string{
			"EAApage",
			"app-secret",
			"verify",
			"",
			"WITTOKEN",
			"owm",
			"gtrans",
			"debug",
		}, "\n") + "\n"

		var out bytes.Buffer
		cfg, err := NewWizard(strings.NewReader(answers), &out).Run()
		require.NoError(t, err)

		assert.Equal(t, "EAApage", cfg.Messenger.PageToken)
		assert.Equal(t, ProviderWit, cfg.NLU.Provider)
		assert.Equal(t, "WITTOKEN", cfg.NLU.Token)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("reprompts invalid page token", func(t *testing.T) {
		answers := strings.Join([]string{
			"not-a-page-token",
			"EAApage",
			"app-secret",
			"verify",
			"pattern",
			"owm",
			"gtrans",
			"",
		}, "\n") + "\n"

		var out bytes.Buffer
		cfg, err := NewWizard(strings.NewReader(answers), &out).Run()
		require.NoError(t, err)

		assert.Contains(t, out.String(), "invalid page token format")
		assert.Equal(t, ProviderPattern, cfg.NLU.Provider)
		assert.Empty(t, cfg.NLU.Token)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("anthropic asks for model", func(t *testing.T) {
		answers := strings.Join([]string{
			"EAApage", "app-secret", "verify",
			"anthropic", "sk-ant-abc", "claude-sonnet-4",
			"owm", "gtrans", "",
		}, "\n") + "\n"

		cfg, err := NewWizard(strings.NewReader(answers), &bytes.Buffer{}).Run()
		require.NoError(t, err)
		assert.Equal(t, "claude-sonnet-4", cfg.NLU.Model)
	})

	t.Run("eof aborts", func(t *testing.T) {
		_, err := NewWizard(strings.NewReader("EAApage\n"), &bytes.Buffer{}).Run()
		assert.Error(t, err)
	})
}
