package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A
// missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("GEMGATE_API_KEY", &c.APIKey)
	envStr("GEMGATE_MODEL", &c.Agent.Model)
	envStr("GEMGATE_WORKSPACE", &c.Agent.Workspace)

	envStr("GEMGATE_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("GEMGATE_HOST", &c.Gateway.Host)
	envInt("GEMGATE_PORT", &c.Gateway.Port)

	envStr("GEMGATE_SESSIONS_STORAGE", &c.Sessions.Storage)
	envStr("GEMGATE_SESSIONS_BACKEND", &c.Sessions.Backend)

	envStr("GEMGATE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GEMGATE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GEMGATE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("GEMGATE_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("GEMGATE_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}
