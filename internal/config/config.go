// Package config loads codeless configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all codeless configuration.
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Refinement loop budgets
	Loop LoopConfig `yaml:"loop"`

	// Test execution
	Runner RunnerConfig `yaml:"runner"`

	// Filesystem watch mode
	Watch WatchConfig `yaml:"watch"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Session audit trail
	Audit AuditConfig `yaml:"audit"`
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// LoopConfig bounds the refinement loop.
type LoopConfig struct {
	TestRounds int `yaml:"test_rounds"`
	ImplRounds int `yaml:"impl_rounds"`
}

// RunnerConfig configures test execution.
type RunnerConfig struct {
	Command   string `yaml:"command"`
	PythonBin string `yaml:"python_bin"`
	Timeout   string `yaml:"timeout"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AuditConfig configures session recording.
type AuditConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			Timeout:  "120s",
		},
		Loop: LoopConfig{
			TestRounds: 10,
			ImplRounds: 3,
		},
		Runner: RunnerConfig{
			Command:   "python -m unittest discover -v -p *_test.py",
			PythonBin: "python",
			Timeout:   "5m",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Server: ServerConfig{
			Addr: ":8089",
		},
		Audit: AuditConfig{
			Enabled:      true,
			DatabasePath: "data/codeless.db",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. A configured
// provider is never switched away from: environment keys first fill the
// credential for that provider, and only a config with no usable key at
// all falls back to the key-priority chain.
func (c *Config) applyEnvOverrides() {
	envKeys := map[string]string{
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"gemini":    os.Getenv("GEMINI_API_KEY"),
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = envKeys[c.LLM.Provider]
	}
	if c.LLM.APIKey == "" {
		for _, provider := range []string{"anthropic", "openai", "gemini"} {
			if envKeys[provider] != "" {
				c.LLM.Provider = provider
				c.LLM.APIKey = envKeys[provider]
				break
			}
		}
	}

	if model := os.Getenv("CODELESS_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if base := os.Getenv("CODELESS_BASE_URL"); base != "" {
		c.LLM.BaseURL = base
	}
	if addr := os.Getenv("CODELESS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if db := os.Getenv("CODELESS_DB"); db != "" {
		c.Audit.DatabasePath = db
	}
	if rounds := os.Getenv("CODELESS_TEST_ROUNDS"); rounds != "" {
		if n, err := strconv.Atoi(rounds); err == nil && n > 0 {
			c.Loop.TestRounds = n
		}
	}
	if rounds := os.Getenv("CODELESS_IMPL_ROUNDS"); rounds != "" {
		if n, err := strconv.Atoi(rounds); err == nil && n > 0 {
			c.Loop.ImplRounds = n
		}
	}
}

// LLMTimeout parses the LLM timeout, falling back to two minutes.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 2*time.Minute)
}

// RunnerTimeout parses the runner timeout, falling back to five minutes.
func (c *Config) RunnerTimeout() time.Duration {
	return parseDuration(c.Runner.Timeout, 5*time.Minute)
}

// WatchDebounce parses the watch debounce, falling back to half a second.
func (c *Config) WatchDebounce() time.Duration {
	return parseDuration(c.Watch.Debounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
