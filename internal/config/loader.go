package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every config key when read from the environment,
// e.g. server.port is SHINIMI_SERVER_PORT.
const EnvPrefix = "SHINIMI"

// legacyEnv maps config keys to the environment names the bot has always been deployed with.
var legacyEnv = map[string]string{
	"nlu.token":              "WIT_TOKEN",
	"messenger.page_token":   "FB_PAGE_TOKEN",
	"messenger.app_secret":   "FB_APP_SECRET",
	"messenger.verify_token": "FB_VERIFY_TOKEN",
	"weather.api_key":        "OPENWEATHERMAP_API_KEY",
	"translate.api_key":      "TRANSLATE_API_KEY",
	"server.port":            "PORT",
}

// Loader handles configuration loading
type Loader struct {
	configPath string

	mu    sync.Mutex
	viper *viper.Viper
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the optional config file and overlays environment variables
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+envKey(key), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	configPath := l.GetConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.viper = v
	l.mu.Unlock()

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".shinimi")
	}

	return cfg, nil
}

// setDefaults registers every field of cfg so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	for key, value := range tree {
		v.SetDefault(key, value)
	}
	return nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Watch reloads the config file whenever it changes on disk and hands the
// new config to onChange. Reloads that fail to decode are reported to onError
// and the previous config stays in effect. Watch is a no-op when Load found no file.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config), onError func(error)) {
	l.mu.Lock()
	v := l.viper
	l.mu.Unlock()

	if v == nil || v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// Save writes cfg as JSON to the config path
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("server", cfg.Server)
	v.Set("messenger", cfg.Messenger)
	v.Set("nlu", cfg.NLU)
	v.Set("weather", cfg.Weather)
	v.Set("translate", cfg.Translate)
	v.Set("corpus", cfg.Corpus)
	v.Set("session", cfg.Session)
	v.Set("dedup", cfg.Dedup)
	v.Set("events", cfg.Events)
	v.Set("tracing", cfg.Tracing)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// config holds secrets
	if err := os.Chmod(configPath, 0600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "shinimi.json"
	}
	return filepath.Join(home, ".shinimi", "shinimi.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
