// Package config loads runtime configuration with layered precedence:
// built-in defaults, then an optional YAML file, then STUDYPAL_* environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "STUDYPAL_"

// Config is the full runtime configuration.
type Config struct {
	Addr     string   `koanf:"addr" validate:"required"`
	DB       string   `koanf:"db" validate:"required"`
	Repos    string   `koanf:"repos" validate:"required"`
	Telegram Telegram `koanf:"telegram"`
	OpenAI   OpenAI   `koanf:"openai"`
	Quiz     Quiz     `koanf:"quiz"`
}

// Telegram configures the bot transport. An empty token runs the bot
// without outbound sends, which is fine for local development.
type Telegram struct {
	Token string `koanf:"token"`
	// APIBase overrides the Telegram API endpoint, for tests and proxies.
	APIBase string `koanf:"api_base"`
	// AllowedUserID restricts the bot to one Telegram user. Zero disables
	// the gate.
	AllowedUserID int64 `koanf:"allowed_user_id"`
}

// OpenAI configures the quiz-writing collaborator. An empty key runs
// generation and grading on their offline fallbacks.
type OpenAI struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

// Quiz tunes the session engine.
type Quiz struct {
	Questions int `koanf:"questions" validate:"min=1,max=10"`
	PassScore int `koanf:"pass_score" validate:"min=0,max=10"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:  ":8080",
		DB:    "studypal.db",
		Repos: "repos",
		OpenAI: OpenAI{
			Model: "gpt-4.1-mini",
		},
		Quiz: Quiz{
			Questions: 3,
			PassScore: 6,
		},
	}
}

// Load builds the configuration. configFile may be empty; a named file that
// does not exist is an error, so typos fail loudly instead of silently
// running on defaults.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", configFile, err)
		}
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		// STUDYPAL_TELEGRAM_API_BASE -> telegram.api_base: the first
		// underscore separates the section, the rest stay literal.
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		return strings.Replace(key, "_", ".", 1), value
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment config: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flag config: %w", err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
