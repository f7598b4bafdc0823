package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Agent.Model != "gpt-4o" {
		t.Errorf("Expected default model gpt-4o, got %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxToolCalls != 5 {
		t.Errorf("Expected default budget 5, got %d", cfg.Agent.MaxToolCalls)
	}
	if cfg.Agent.Temperature != 0.7 {
		t.Errorf("Expected default temperature 0.7, got %v", cfg.Agent.Temperature)
	}
	if cfg.Agent.CallTimeout != 60*time.Second {
		t.Errorf("Expected default call timeout 60s, got %v", cfg.Agent.CallTimeout)
	}
	if cfg.Server.Addr != ":8780" {
		t.Errorf("Expected default addr :8780, got %q", cfg.Server.Addr)
	}
	if cfg.Memory.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("Expected default embedding model, got %q", cfg.Memory.EmbeddingModel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Missing file must not error: %v", err)
	}
	if cfg.Agent.Model == "" {
		t.Error("Missing file should fall back to defaults")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
agent:
  model: gpt-4o-mini
  max_tool_calls: 2
  call_timeout: 30s
workspace:
  base_url: http://localhost:9000
  token: tok-123
server:
  addr: ":9999"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Model != "gpt-4o-mini" {
		t.Errorf("Expected model override, got %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxToolCalls != 2 {
		t.Errorf("Expected budget 2, got %d", cfg.Agent.MaxToolCalls)
	}
	if cfg.Agent.CallTimeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", cfg.Agent.CallTimeout)
	}
	// Untouched sections keep their defaults
	if cfg.Agent.Temperature != 0.7 {
		t.Errorf("Unset fields keep defaults, got %v", cfg.Agent.Temperature)
	}
	if cfg.Workspace.Token != "tok-123" {
		t.Errorf("Expected workspace token, got %q", cfg.Workspace.Token)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Expected addr override, got %q", cfg.Server.Addr)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("agent: [not a map"), 0o644)

	if _, err := Load(path); err == nil {
		t.Error("Malformed YAML must error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIVEN_MODEL", "env-model")
	t.Setenv("SCRIVEN_WORKSPACE_TOKEN", "env-token")
	t.Setenv("SCRIVEN_MAX_TOOL_CALLS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Model != "env-model" {
		t.Errorf("Expected env model, got %q", cfg.Agent.Model)
	}
	if cfg.Workspace.Token != "env-token" {
		t.Errorf("Expected env token, got %q", cfg.Workspace.Token)
	}
	if cfg.Agent.MaxToolCalls != 7 {
		t.Errorf("Expected env budget 7, got %d", cfg.Agent.MaxToolCalls)
	}
}

func TestEnvFallbackKeys(t *testing.T) {
	t.Setenv("SCRIVEN_WORKSPACE_TOKEN", "")
	t.Setenv("NOTION_TOKEN", "fallback-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace.Token != "fallback-token" {
		t.Errorf("Expected fallback token, got %q", cfg.Workspace.Token)
	}
}

func TestEnvBadBudgetIgnored(t *testing.T) {
	t.Setenv("SCRIVEN_MAX_TOOL_CALLS", "zero")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxToolCalls != 5 {
		t.Errorf("Bad env value should keep default, got %d", cfg.Agent.MaxToolCalls)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("SCRIVEN_DATA_DIR", "/tmp/scriven-test")
	if got := DefaultDataDir(); got != "/tmp/scriven-test" {
		t.Errorf("Expected env data dir, got %q", got)
	}
}
