// Package config loads runtime configuration from a config file, environment
// variables (MOLTBOT_ prefix) and CLI flags, in that order of precedence.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full moltbot configuration.
type Config struct {
	Moltbook  MoltbookConfig  `mapstructure:"moltbook"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Data      DataConfig      `mapstructure:"data"`
	Persona   PersonaConfig   `mapstructure:"persona"`
}

// MoltbookConfig holds platform API settings.
type MoltbookConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// LLMConfig selects the decision model.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
}

// AgentConfig tunes the autonomous loop.
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	CycleInterval string `mapstructure:"cycle_interval"`
	ErrorPause    string `mapstructure:"error_pause"`
}

// DashboardConfig controls the local web UI.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DataConfig points at the state directory. All persisted files live under
// Dir: rate limits, suggestions, the activity archive and the content index.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// PersonaConfig overrides the stock character.
type PersonaConfig struct {
	Name  string   `mapstructure:"name"`
	Voice string   `mapstructure:"voice"`
	Style []string `mapstructure:"style"`
}

// InitViper registers keys, defaults and the MOLTBOT_ env prefix on the
// global viper. Every key needs a default so AutomaticEnv can see it.
func InitViper() {
	viper.SetEnvPrefix("MOLTBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("moltbook.api_key", "")
	viper.SetDefault("moltbook.base_url", "")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", "")
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("agent.max_iterations", 10)
	viper.SetDefault("agent.cycle_interval", "0s")
	viper.SetDefault("agent.error_pause", "2s")
	viper.SetDefault("dashboard.enabled", true)
	viper.SetDefault("dashboard.addr", ":5000")
	viper.SetDefault("data.dir", "data")
	viper.SetDefault("persona.name", "")
	viper.SetDefault("persona.voice", "")
	viper.SetDefault("persona.style", []string{})
}

// Load unmarshals the global viper into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the process cannot run without.
func (c *Config) Validate() error {
	if c.Moltbook.APIKey == "" {
		return fmt.Errorf("moltbook.api_key is required (set MOLTBOT_MOLTBOOK_API_KEY)")
	}
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if _, err := c.CycleInterval(); err != nil {
		return fmt.Errorf("invalid agent.cycle_interval: %w", err)
	}
	if _, err := c.ErrorPause(); err != nil {
		return fmt.Errorf("invalid agent.error_pause: %w", err)
	}
	return nil
}

// CycleInterval parses the configured pause between cycles.
func (c *Config) CycleInterval() (time.Duration, error) {
	if c.Agent.CycleInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Agent.CycleInterval)
}

// ErrorPause parses the configured backoff after a failed cycle.
func (c *Config) ErrorPause() (time.Duration, error) {
	if c.Agent.ErrorPause == "" {
		return 2 * time.Second, nil
	}
	return time.ParseDuration(c.Agent.ErrorPause)
}

// RateLimitPath returns the rate limit state file under the data dir.
func (c *Config) RateLimitPath() string {
	return filepath.Join(c.Data.Dir, "rate_limits.json")
}

// SuggestionsPath returns the suggestion inbox file under the data dir.
func (c *Config) SuggestionsPath() string {
	return filepath.Join(c.Data.Dir, "suggestions.json")
}

// ActivityDBPath returns the sqlite activity archive under the data dir.
func (c *Config) ActivityDBPath() string {
	return filepath.Join(c.Data.Dir, "activity.db")
}

// MemoryIndexPath returns the content index directory under the data dir.
func (c *Config) MemoryIndexPath() string {
	return filepath.Join(c.Data.Dir, "memory.bleve")
}
