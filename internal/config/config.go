// Package config loads and validates the skillian.json configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all Skillian configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Skill discovery and hot-reload
	Skills SkillsConfig `json:"skills"`

	// Data connectors handed to skills by name
	Connectors []ConnectorConfig `json:"connectors,omitempty"`

	// LLM provider settings
	Providers []ProviderConfig `json:"providers"`

	// Conversation loop settings
	Agent AgentConfig `json:"agent"`
}

type ServerConfig struct {
	DataDir  string `json:"dataDir"`
	LogLevel string `json:"logLevel"`
}

type SkillsConfig struct {
	// Dir is the root directory scanned for skill subdirectories.
	Dir string `json:"dir"`
	// ReloadSchedule is a cron spec for the hot-reload sweep.
	// Empty disables the sweep.
	ReloadSchedule string `json:"reloadSchedule,omitempty"`
}

// ConnectorConfig describes one named data connector.
type ConnectorConfig struct {
	Name string `json:"name"`
	Type string `json:"type"` // "sqlite" or "mock"
	// Path is the database file (sqlite).
	Path string `json:"path,omitempty"`
	// DatasetFile seeds a mock connector from a JSON file of
	// table name -> rows. Empty uses the built-in sample dataset.
	DatasetFile string `json:"datasetFile,omitempty"`
}

// ProviderConfig describes one LLM provider endpoint.
type ProviderConfig struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"` // "anthropic", "openai", "ollama"
	APIKey    string  `json:"apiKey,omitempty"`
	APIKeyEnv string  `json:"apiKeyEnv,omitempty"`
	BaseURL   string  `json:"baseUrl,omitempty"`
	Models    []Model `json:"models"`
}

// Model describes a model offered by a provider.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ContextWindow int    `json:"contextWindow,omitempty"`
}

// AgentConfig holds conversation loop settings.
type AgentConfig struct {
	SystemPrompt     string   `json:"systemPrompt,omitempty"`
	Model            string   `json:"model"` // "provider/model-id"
	Fallback         []string `json:"fallback,omitempty"`
	MaxIterations    int      `json:"maxIterations"`
	MaxParallel      int      `json:"maxParallel"`
	MaxTokens        int      `json:"maxTokens"`
	Temperature      float64  `json:"temperature"`
	ToolTimeoutSecs  int      `json:"toolTimeoutSecs"`
	ModelTimeoutSecs int      `json:"modelTimeoutSecs"`
}

// DefaultConfig returns a config with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			DataDir:  "./data",
			LogLevel: "info",
		},
		Skills: SkillsConfig{
			Dir:            "./skills",
			ReloadSchedule: "@every 30s",
		},
		Agent: AgentConfig{
			MaxIterations:    10,
			MaxParallel:      5,
			MaxTokens:        4096,
			Temperature:      0.7,
			ToolTimeoutSecs:  30,
			ModelTimeoutSecs: 120,
		},
	}
}

// Load reads config from a JSON file, applying defaults for absent fields.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for inconsistencies.
func (c *Config) Validate() error {
	if c.Skills.Dir == "" {
		return fmt.Errorf("skills.dir must not be empty")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.maxIterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxParallel < 1 {
		return fmt.Errorf("agent.maxParallel must be at least 1, got %d", c.Agent.MaxParallel)
	}

	seen := make(map[string]bool)
	for _, conn := range c.Connectors {
		if conn.Name == "" {
			return fmt.Errorf("connector with empty name")
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connector name: %s", conn.Name)
		}
		seen[conn.Name] = true
		switch conn.Type {
		case "sqlite":
			if conn.Path == "" {
				return fmt.Errorf("connector %s: sqlite requires path", conn.Name)
			}
		case "mock":
		default:
			return fmt.Errorf("connector %s: unknown type %q", conn.Name, conn.Type)
		}
	}

	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		switch p.Type {
		case "anthropic", "openai", "ollama":
		default:
			return fmt.Errorf("provider %s: unknown type %q", p.Name, p.Type)
		}
	}
	return nil
}

// ResolveAPIKey returns the provider's API key, preferring the literal key
// and falling back to the named environment variable.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}
