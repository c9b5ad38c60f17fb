package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator checks credential formats and settings beyond what Validate requires.
// Its findings are advisory: check-config prints them, start does not refuse to run.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateNLUToken validates the token format for an NLU provider
func (v *Validator) ValidateNLUToken(token string, provider string) error {
	if provider == ProviderPattern {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%s token cannot be empty", provider)
	}

	switch provider {
	case ProviderAnthropic:
		if !strings.HasPrefix(token, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case ProviderOpenAI:
		if !strings.HasPrefix(token, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case ProviderWit:
		if strings.ContainsAny(token, " \t\n") {
			return fmt.Errorf("invalid Wit.ai token format (contains whitespace)")
		}
	}

	return nil
}

// ValidatePageToken validates a Messenger page access token
func (v *Validator) ValidatePageToken(token string) error {
	if token == "" {
		return fmt.Errorf("page token cannot be empty")
	}
	if !strings.HasPrefix(token, "EAA") {
		return fmt.Errorf("invalid page token format (should start with EAA)")
	}
	return nil
}

// ValidateProvider validates an NLU provider name
func (v *Validator) ValidateProvider(provider string) error {
	valid := []string{ProviderWit, ProviderAnthropic, ProviderOpenAI, ProviderPattern}
	for _, p := range valid {
		if provider == p {
			return nil
		}
	}
	return fmt.Errorf("invalid nlu provider: %s (must be one of: %s)", provider, strings.Join(valid, ", "))
}

// ValidateModel requires a model name for LLM providers
func (v *Validator) ValidateModel(provider, model string) error {
	if provider != ProviderAnthropic && provider != ProviderOpenAI {
		return nil
	}
	if model == "" {
		return fmt.Errorf("nlu.model is required for provider %s", provider)
	}
	return nil
}

// ValidateBaseURL validates a service base URL
func (v *Validator) ValidateBaseURL(name, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: URL scheme must be http or https, got %q", name, u.Scheme)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.NLU.Provider); err != nil {
		errors = append(errors, err)
	} else {
		if cfg.NLU.Token != "" {
			if err := v.ValidateNLUToken(cfg.NLU.Token, cfg.NLU.Provider); err != nil {
				errors = append(errors, err)
			}
		}
		if err := v.ValidateModel(cfg.NLU.Provider, cfg.NLU.Model); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Messenger.PageToken != "" {
		if err := v.ValidatePageToken(cfg.Messenger.PageToken); err != nil {
			errors = append(errors, err)
		}
	}

	urls := []struct{ name, raw string }{
		{"messenger.graph_url", cfg.Messenger.GraphURL},
		{"nlu.base_url", cfg.NLU.BaseURL},
		{"weather.base_url", cfg.Weather.BaseURL},
		{"translate.base_url", cfg.Translate.BaseURL},
	}
	for _, u := range urls {
		if err := v.ValidateBaseURL(u.name, u.raw); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Dedup.TTL <= 0 {
		errors = append(errors, fmt.Errorf("dedup.ttl must be positive"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
