package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingSecret is returned by Validate when a required credential is absent
var ErrMissingSecret = errors.New("missing required secret")

// NLU providers
const (
	ProviderWit       = "wit"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderPattern   = "pattern"
)

// Dedup backends
const (
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// Config represents the main Shinimi configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Messenger platform
	Messenger MessengerConfig `json:"messenger" mapstructure:"messenger"`

	// NLU engine
	NLU NLUConfig `json:"nlu" mapstructure:"nlu"`

	// External services
	Weather   WeatherConfig   `json:"weather" mapstructure:"weather"`
	Translate TranslateConfig `json:"translate" mapstructure:"translate"`

	// Reply corpus
	Corpus CorpusConfig `json:"corpus" mapstructure:"corpus"`

	// Session lifecycle
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Webhook redelivery dedup
	Dedup DedupConfig `json:"dedup" mapstructure:"dedup"`

	// Operator event stream
	Events EventsConfig `json:"events" mapstructure:"events"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory (pid file, default log file)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds webhook server configuration
type ServerConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	ReadTimeout     int    `json:"read_timeout" mapstructure:"read_timeout"`         // seconds
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// MessengerConfig holds Messenger platform credentials
type MessengerConfig struct {
	PageToken   string `json:"page_token" mapstructure:"page_token"`
	AppSecret   string `json:"app_secret" mapstructure:"app_secret"`
	VerifyToken string `json:"verify_token" mapstructure:"verify_token"`
	GraphURL    string `json:"graph_url" mapstructure:"graph_url"`
	Timeout     int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// NLUConfig selects and configures the NLU engine
type NLUConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // wit, anthropic, openai, pattern
	Token     string `json:"token" mapstructure:"token"`       // Wit server token or LLM API key
	Model     string `json:"model" mapstructure:"model"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"` // empty uses the provider's default endpoint
	MaxSteps  int    `json:"max_steps" mapstructure:"max_steps"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout   int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// WeatherConfig holds OpenWeatherMap settings
type WeatherConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Units   string `json:"units" mapstructure:"units"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// TranslateConfig holds translation service settings
type TranslateConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Timeout int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// CorpusConfig points at the reply corpus files
type CorpusConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// SessionConfig holds session expiry settings
type SessionConfig struct {
	IdleTTL       int `json:"idle_ttl" mapstructure:"idle_ttl"`             // seconds, 0 disables expiry
	SweepInterval int `json:"sweep_interval" mapstructure:"sweep_interval"` // seconds
}

// DedupConfig holds webhook message dedup settings
type DedupConfig struct {
	Backend       string `json:"backend" mapstructure:"backend"` // memory, redis
	TTL           int    `json:"ttl" mapstructure:"ttl"`         // seconds
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
	Prefix        string `json:"prefix" mapstructure:"prefix"`
}

// EventsConfig holds the websocket event stream settings
type EventsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     10,
			ShutdownTimeout: 15,
		},
		Messenger: MessengerConfig{
			GraphURL: "https://graph.facebook.com/v2.6",
			Timeout:  10,
		},
		NLU: NLUConfig{
			Provider:  ProviderWit,
			MaxSteps:  5,
			MaxTokens: 1024,
			Timeout:   15,
		},
		Weather: WeatherConfig{
			BaseURL: "https://api.openweathermap.org",
			Units:   "imperial",
			Timeout: 10,
		},
		Translate: TranslateConfig{
			BaseURL: "https://translation.googleapis.com",
			Timeout: 10,
		},
		Corpus: CorpusConfig{
			Dir: "text",
		},
		Session: SessionConfig{
			IdleTTL:       3600,
			SweepInterval: 60,
		},
		Dedup: DedupConfig{
			Backend: DedupMemory,
			TTL:     600,
			Prefix:  "shinimi:mid:",
		},
		Events: EventsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "shinimi",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.Messenger.PageToken = mask(c.Messenger.PageToken)
	masked.Messenger.AppSecret = mask(c.Messenger.AppSecret)
	masked.Messenger.VerifyToken = mask(c.Messenger.VerifyToken)
	masked.NLU.Token = mask(c.NLU.Token)
	masked.Weather.APIKey = mask(c.Weather.APIKey)
	masked.Translate.APIKey = mask(c.Translate.APIKey)
	masked.Dedup.RedisPassword = mask(c.Dedup.RedisPassword)

	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// Addr returns the host:port the webhook server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Seconds converts a seconds field into a time.Duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Validate checks that every required secret is present and that settings are usable.
// Missing credentials wrap ErrMissingSecret.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require("messenger.page_token", c.Messenger.PageToken)
	require("messenger.app_secret", c.Messenger.AppSecret)
	require("messenger.verify_token", c.Messenger.VerifyToken)
	require("weather.api_key", c.Weather.APIKey)
	require("translate.api_key", c.Translate.APIKey)
	if c.NLU.Provider != ProviderPattern {
		require("nlu.token", c.NLU.Token)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(missing, ", "))
	}

	switch c.NLU.Provider {
	case ProviderWit, ProviderAnthropic, ProviderOpenAI, ProviderPattern:
	default:
		return fmt.Errorf("invalid nlu provider %s (must be: wit, anthropic, openai, pattern)", c.NLU.Provider)
	}
	if c.NLU.MaxSteps <= 0 {
		return fmt.Errorf("nlu.max_steps must be positive, got %d", c.NLU.MaxSteps)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Dedup.Backend {
	case DedupMemory:
	case DedupRedis:
		if c.Dedup.RedisAddr == "" {
			return fmt.Errorf("dedup.redis_addr is required when dedup backend is redis")
		}
	default:
		return fmt.Errorf("invalid dedup backend %s (must be: memory, redis)", c.Dedup.Backend)
	}

	if c.Session.IdleTTL < 0 {
		return fmt.Errorf("session.idle_ttl must be >= 0")
	}
	if c.Session.IdleTTL > 0 && c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweep_interval must be positive when idle_ttl is set")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %g", c.Tracing.SampleRatio)
	}

	return nil
}
