package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func freshViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	InitViper()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	freshViper(t)
	viper.Set("moltbook.api_key", "moltbook_test_key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("provider default = %q", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations default = %d", cfg.Agent.MaxIterations)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Addr != ":5000" {
		t.Errorf("dashboard defaults = %+v", cfg.Dashboard)
	}
	if d, _ := cfg.ErrorPause(); d != 2*time.Second {
		t.Errorf("error pause default = %v", d)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	freshViper(t)
	t.Setenv("MOLTBOT_MOLTBOOK_API_KEY", "moltbook_env_key")
	t.Setenv("MOLTBOT_LLM_PROVIDER", "anthropic")
	t.Setenv("MOLTBOT_AGENT_CYCLE_INTERVAL", "90s")
	t.Setenv("MOLTBOT_DATA_DIR", "/var/lib/moltbot")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Moltbook.APIKey != "moltbook_env_key" {
		t.Errorf("api key = %q", cfg.Moltbook.APIKey)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.LLM.Provider)
	}
	if d, err := cfg.CycleInterval(); err != nil || d != 90*time.Second {
		t.Errorf("cycle interval = %v, %v", d, err)
	}
	if got := cfg.RateLimitPath(); got != "/var/lib/moltbot/rate_limits.json" {
		t.Errorf("rate limit path = %q", got)
	}
}

func TestValidateRejectsMissingAPIKey(t *testing.T) {
	freshViper(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing moltbook.api_key")
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	freshViper(t)
	viper.Set("moltbook.api_key", "k")
	viper.Set("agent.cycle_interval", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable cycle_interval")
	}
}
