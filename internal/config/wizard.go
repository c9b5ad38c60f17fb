package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard reading answers from in
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run walks through the required secrets and the NLU engine choice
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== Shinimi Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	fmt.Fprintln(w.out, "Messenger:")
	token, err := w.required("Page access token", validator.ValidatePageToken)
	if err != nil {
		return nil, err
	}
	cfg.Messenger.PageToken = token

	if cfg.Messenger.AppSecret, err = w.required("App secret", nil); err != nil {
		return nil, err
	}
	if cfg.Messenger.VerifyToken, err = w.required("Webhook verify token", nil); err != nil {
		return nil, err
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "NLU engine options:")
	fmt.Fprintln(w.out, "  wit       - Wit.ai converse API (default)")
	fmt.Fprintln(w.out, "  anthropic - Claude tool calling")
	fmt.Fprintln(w.out, "  openai    - OpenAI tool calling")
	fmt.Fprintln(w.out, "  pattern   - offline regex rules")
	provider, err := w.prompt("NLU provider [wit]: ")
	if err != nil {
		return nil, err
	}
	if provider != "" {
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (wit)\n", err)
		} else {
			cfg.NLU.Provider = provider
		}
	}

	if cfg.NLU.Provider != ProviderPattern {
		p := cfg.NLU.Provider
		nluToken, err := w.required("NLU token", func(s string) error {
			return validator.ValidateNLUToken(s, p)
		})
		if err != nil {
			return nil, err
		}
		cfg.NLU.Token = nluToken
	}

	if cfg.NLU.Provider == ProviderAnthropic || cfg.NLU.Provider == ProviderOpenAI {
		if cfg.NLU.Model, err = w.required("Model name", nil); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Services:")
	if cfg.Weather.APIKey, err = w.required("OpenWeatherMap API key", nil); err != nil {
		return nil, err
	}
	if cfg.Translate.APIKey, err = w.required("Translation API key", nil); err != nil {
		return nil, err
	}

	fmt.Fprintln(w.out)
	level, err := w.prompt("Log level (debug/info/warn/error) [info]: ")
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// required re-prompts until a non-empty value passes check
func (w *Wizard) required(label string, check func(string) error) (string, error) {
	for {
		value, err := w.prompt(label + ": ")
		if err != nil {
			return "", err
		}
		if value == "" {
			fmt.Fprintf(w.out, "Error: %s is required\n", label)
			continue
		}
		if check != nil {
			if err := check(value); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
		}
		return value, nil
	}
}

func (w *Wizard) prompt(text string) (string, error) {
	fmt.Fprint(w.out, text)
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
