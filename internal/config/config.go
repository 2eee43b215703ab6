// Package config holds the gemgate runtime configuration: a JSON5
// file overlaid with GEMGATE_* environment variables. The API key is
// env-only and never persisted.
package config

import (
	"encoding/json"
	"os"
	"sync"
)

// DefaultAgentID is used when no agent name is configured.
const DefaultAgentID = "default"

// Config is the root configuration. A RWMutex guards concurrent
// access because hot reload swaps fields in place.
type Config struct {
	mu sync.RWMutex

	Agent     AgentConfig     `json:"agent"`
	Gateway   GatewayConfig   `json:"gateway"`
	Sessions  SessionsConfig  `json:"sessions"`
	Tools     ToolsConfig     `json:"tools"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// APIKey comes from GEMGATE_API_KEY only; never from the file.
	APIKey string `json:"-"`
}

type AgentConfig struct {
	Name              string `json:"name,omitempty"`
	Identity          string `json:"identity,omitempty"`
	Model             string `json:"model,omitempty"`
	ThinkingBudget    *int   `json:"thinkingBudget,omitempty"`
	ContextWindow     int    `json:"contextWindow,omitempty"`
	MaxToolIterations int    `json:"maxToolIterations,omitempty"`
	SoftToolLimit     int    `json:"softToolLimit,omitempty"`
	Workspace         string `json:"workspace,omitempty"`
	PromptMode        string `json:"promptMode,omitempty"`
}

type GatewayConfig struct {
	Host            string   `json:"host,omitempty"`
	Port            int      `json:"port,omitempty"`
	Token           string   `json:"token,omitempty"`
	AllowedOrigins  []string `json:"allowedOrigins,omitempty"`
	MaxMessageChars int      `json:"maxMessageChars,omitempty"`
	RateLimitRPM    int      `json:"rateLimitRpm,omitempty"`
}

type SessionsConfig struct {
	Storage    string `json:"storage,omitempty"`
	Backend    string `json:"backend,omitempty"` // "json" or "sqlite"
	TTLMinutes int    `json:"ttlMinutes,omitempty"`
}

type ToolsConfig struct {
	MaxConcurrency int    `json:"maxConcurrency,omitempty"`
	TimeoutSec     int    `json:"timeoutSec,omitempty"`
	ContextDir     string `json:"contextDir,omitempty"`
}

type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"` // "grpc" or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns a Config with working defaults for everything but
// the API key.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:              DefaultAgentID,
			Model:             "gemini-2.0-flash",
			ContextWindow:     128000,
			MaxToolIterations: 8,
			SoftToolLimit:     6,
			Workspace:         "~/.gemgate/workspace",
			PromptMode:        "full",
		},
		Gateway: GatewayConfig{
			Host:            "127.0.0.1",
			Port:            18990,
			MaxMessageChars: 32000,
			RateLimitRPM:    30,
		},
		Sessions: SessionsConfig{
			Storage:    "~/.gemgate/sessions",
			Backend:    "json",
			TTLMinutes: 30,
		},
		Tools: ToolsConfig{
			MaxConcurrency: 4,
			TimeoutSec:     30,
			ContextDir:     "~/.gemgate/context",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "gemgate",
		},
	}
}

// Snapshot returns a copy safe to read without holding the lock.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := Config{
		Agent:     c.Agent,
		Gateway:   c.Gateway,
		Sessions:  c.Sessions,
		Tools:     c.Tools,
		Telemetry: c.Telemetry,
		APIKey:    c.APIKey,
	}
	out.Gateway.AllowedOrigins = append([]string(nil), c.Gateway.AllowedOrigins...)
	return out
}

// replaceFrom swaps all settings in place, keeping the same lock. The
// API key always comes from the environment, never from src.
func (c *Config) replaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agent = src.Agent
	c.Gateway = src.Gateway
	c.Sessions = src.Sessions
	c.Tools = src.Tools
	c.Telemetry = src.Telemetry
	c.APIKey = src.APIKey
}

const secretMask = "***"

// MaskedJSON renders the config for display with secrets masked.
func (c *Config) MaskedJSON() ([]byte, error) {
	cp := c.Snapshot()
	if cp.Gateway.Token != "" {
		cp.Gateway.Token = secretMask
	}
	return json.MarshalIndent(&cp, "", "  ")
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Agent.Workspace)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
