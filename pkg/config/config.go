// Package config provides configuration types and defaults for scriven services
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentConfig holds the conversation controller configuration
type AgentConfig struct {
	Model         string        `yaml:"model"`          // chat model name
	SummaryModel  string        `yaml:"summary_model"`  // model for rolling summaries (defaults to Model)
	APIKey        string        `yaml:"api_key"`        // completion provider API key
	BaseURL       string        `yaml:"base_url"`       // completion provider base URL
	Provider      string        `yaml:"provider"`       // "openai" (default) or "google"
	Temperature   float64       `yaml:"temperature"`    // sampling temperature (default 0.7)
	MaxTokens     int           `yaml:"max_tokens"`     // completion token cap (default 1000)
	MaxToolCalls  int           `yaml:"max_tool_calls"` // tool dispatch budget per turn (default 5)
	HistoryPairs  int           `yaml:"history_pairs"`  // user/assistant pairs loaded into context (default 8)
	ContextTokens int           `yaml:"context_tokens"` // prompt token budget before pruning (default 8192)
	RecallLimit   int           `yaml:"recall_limit"`   // memories injected per prompt (default 3)
	RecallScore   float32       `yaml:"recall_score"`   // minimum similarity for recall (default 0.3)
	CallTimeout   time.Duration `yaml:"call_timeout"`   // per completion/tool call timeout (default 60s)
}

// StorageConfig holds the history store configuration
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// MemoryConfig holds the semantic index configuration
type MemoryConfig struct {
	DBPath         string  `yaml:"db_path"`
	EmbeddingKey   string  `yaml:"embedding_key"`   // OpenAI API key for embeddings
	EmbeddingModel string  `yaml:"embedding_model"` // default text-embedding-3-small
	EmbeddingDim   int     `yaml:"embedding_dim"`   // 0 = derive from model
	MaxResults     int     `yaml:"max_results"`     // default 5
	MinScore       float32 `yaml:"min_score"`       // default 0.3
}

// ProfileConfig holds the user-profile store configuration
type ProfileConfig struct {
	Dir        string `yaml:"dir"`
	MemoryMode bool   `yaml:"memory_mode"` // in-memory Badger, used by tests
}

// WorkspaceConfig holds the content-service client configuration
type WorkspaceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"` // empty token omits workspace tools from the catalog
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds the HTTP front-end configuration
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the top-level configuration document
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Storage   StorageConfig   `yaml:"storage"`
	Memory    MemoryConfig    `yaml:"memory"`
	Profile   ProfileConfig   `yaml:"profile"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Server    ServerConfig    `yaml:"server"`
}

// DefaultDataDir returns the data directory (SCRIVEN_DATA_DIR or ~/.scriven)
func DefaultDataDir() string {
	if d := os.Getenv("SCRIVEN_DATA_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".scriven")
}

// Default returns the default configuration
func Default() *Config {
	data := DefaultDataDir()
	return &Config{
		Agent: AgentConfig{
			Model:         "gpt-4o",
			Provider:      "openai",
			BaseURL:       "https://api.openai.com/v1",
			Temperature:   0.7,
			MaxTokens:     1000,
			MaxToolCalls:  5,
			HistoryPairs:  8,
			ContextTokens: 8192,
			RecallLimit:   3,
			RecallScore:   0.3,
			CallTimeout:   60 * time.Second,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(data, "scriven.db"),
		},
		Memory: MemoryConfig{
			DBPath:         filepath.Join(data, "memory.db"),
			EmbeddingModel: "text-embedding-3-small",
			MaxResults:     5,
			MinScore:       0.3,
		},
		Profile: ProfileConfig{
			Dir: filepath.Join(data, "profile"),
		},
		Workspace: WorkspaceConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8780",
		},
	}
}

// Load reads the config file at path over the defaults, then applies env
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.Agent.APIKey, "SCRIVEN_API_KEY", "OPENAI_API_KEY")
	setStr(&c.Agent.BaseURL, "SCRIVEN_BASE_URL")
	setStr(&c.Agent.Model, "SCRIVEN_MODEL")
	setStr(&c.Agent.Provider, "SCRIVEN_PROVIDER")
	setStr(&c.Memory.EmbeddingKey, "SCRIVEN_EMBEDDING_KEY", "OPENAI_API_KEY")
	setStr(&c.Workspace.BaseURL, "SCRIVEN_WORKSPACE_URL")
	setStr(&c.Workspace.Token, "SCRIVEN_WORKSPACE_TOKEN", "NOTION_TOKEN")
	setStr(&c.Server.Addr, "SCRIVEN_ADDR")
	if v := os.Getenv("SCRIVEN_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.MaxToolCalls = n
		}
	}
}

func setStr(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}
