// Package config handles Parley configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./parley.yaml, ~/.config/parley/parley.yaml, /etc/parley/parley.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"parley.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", "parley.yaml"))
	}

	paths = append(paths, "/etc/parley/parley.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Parley configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Providers ProvidersConfig `yaml:"providers"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Session   SessionConfig   `yaml:"session"`
	Search    SearchConfig    `yaml:"search"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProvidersConfig defines the configured AI backends.
type ProvidersConfig struct {
	OpenRouter OpenAICompatConfig `yaml:"openrouter"`
	Ollama     OllamaConfig       `yaml:"ollama"`
}

// OpenAICompatConfig defines an OpenAI-compatible chat completions endpoint.
// OpenRouter speaks this protocol natively; any compatible gateway works.
type OpenAICompatConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Configured reports whether the endpoint is usable.
func (c OpenAICompatConfig) Configured() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// OllamaConfig defines a local Ollama endpoint.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether an Ollama URL is set.
func (c OllamaConfig) Configured() bool {
	return c.URL != ""
}

// DefaultsConfig defines the fallbacks applied to chat requests that
// omit a provider, model, or temperature.
type DefaultsConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// SessionConfig tunes the orchestration core.
type SessionConfig struct {
	// CompactionThreshold is the number of generation turns after which
	// the conversation history is summarized. Zero means the default (10).
	CompactionThreshold int `yaml:"compaction_threshold"`
	// MaxToolIterations caps the generate/execute cycles within one turn.
	// Zero means the default (5).
	MaxToolIterations int `yaml:"max_tool_iterations"`
	// GenerateTimeoutSec bounds each model call. Zero means 120.
	GenerateTimeoutSec int `yaml:"generate_timeout_sec"`
	// ToolTimeoutSec bounds each tool call. Zero means 30.
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// GenerateTimeout returns the per-model-call timeout.
func (c SessionConfig) GenerateTimeout() time.Duration {
	if c.GenerateTimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.GenerateTimeoutSec) * time.Second
}

// ToolTimeout returns the per-tool-call timeout.
func (c SessionConfig) ToolTimeout() time.Duration {
	if c.ToolTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// SearchConfig defines the search backend used for the web_search tool
// and for context enrichment.
type SearchConfig struct {
	SearXNGURL  string `yaml:"searxng_url"`
	Enrich      bool   `yaml:"enrich"`
	EnrichLimit int    `yaml:"enrich_limit"` // snippets per query, default 3
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Defaults: DefaultsConfig{
			Provider:    "ollama",
			Model:       "qwen3:4b",
			Temperature: 0.7,
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{URL: "http://localhost:11434"},
		},
		DataDir: ".",
	}
}
