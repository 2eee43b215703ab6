package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Port != 18990 {
		t.Errorf("default port = %d", cfg.Gateway.Port)
	}
	if cfg.Agent.MaxToolIterations != 8 || cfg.Agent.SoftToolLimit != 6 {
		t.Errorf("default tool budget = %d/%d", cfg.Agent.MaxToolIterations, cfg.Agent.SoftToolLimit)
	}
	if cfg.Agent.ContextWindow != 128000 {
		t.Errorf("default context window = %d", cfg.Agent.ContextWindow)
	}
}

func TestLoadJSON5WithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
	// agent settings
	agent: { model: "gemini-exp", maxToolIterations: 4 },
	gateway: { port: 9999 },
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Model != "gemini-exp" {
		t.Errorf("model = %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxToolIterations != 4 {
		t.Errorf("maxToolIterations = %d", cfg.Agent.MaxToolIterations)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	// Unset sections keep defaults.
	if cfg.Tools.MaxConcurrency != 4 {
		t.Errorf("tools concurrency = %d", cfg.Tools.MaxConcurrency)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMGATE_API_KEY", "sk-test")
	t.Setenv("GEMGATE_MODEL", "gemini-env")
	t.Setenv("GEMGATE_PORT", "4444")
	t.Setenv("GEMGATE_TELEMETRY_ENABLED", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Agent.Model != "gemini-env" {
		t.Errorf("model = %q", cfg.Agent.Model)
	}
	if cfg.Gateway.Port != 4444 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("telemetry not enabled")
	}
}

func TestAPIKeyNeverFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"apiKey": "leaked"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey from file = %q, want empty", cfg.APIKey)
	}
}

func TestMaskedJSON(t *testing.T) {
	cfg := Default()
	cfg.Gateway.Token = "secret-token"
	cfg.APIKey = "sk-secret"

	data, err := cfg.MaskedJSON()
	if err != nil {
		t.Fatalf("MaskedJSON: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "secret-token") || strings.Contains(s, "sk-secret") {
		t.Errorf("masked output leaks secrets: %s", s)
	}
	if !strings.Contains(s, secretMask) {
		t.Errorf("masked output missing mask: %s", s)
	}
}

func TestWatchReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{gateway: {port: 1111}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stop, err := Watch(t.Context(), cfg, path)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte(`{gateway: {port: 2222}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cfg.Snapshot().Gateway.Port == 2222 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("config never reloaded, port = %d", cfg.Snapshot().Gateway.Port)
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x"); got != home+"/x" {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome(/abs/path) = %q", got)
	}
}
