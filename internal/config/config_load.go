package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			AgentID:    "default",
			TimeoutSec: 120,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
		Pairing: PairingConfig{
			Database: "~/.weclaw/pairing.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
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

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("WECLAW_WECHAT_API_KEY", &c.Channels.WeChat.APIKey)
	envStr("WECLAW_WECHAT_PROXY_URL", &c.Channels.WeChat.ProxyURL)
	envStr("WECLAW_WECHAT_WEBHOOK_HOST", &c.Channels.WeChat.WebhookHost)
	if v := os.Getenv("WECLAW_WECHAT_WEBHOOK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Channels.WeChat.WebhookPort = port
		}
	}

	envStr("WECLAW_AGENT_ENDPOINT", &c.Agent.Endpoint)
	envStr("WECLAW_AGENT_TOKEN", &c.Agent.Token)

	// Credentials via env auto-enable the channel
	if c.Channels.WeChat.APIKey != "" && c.Channels.WeChat.Enabled == nil {
		enabled := true
		c.Channels.WeChat.Enabled = &enabled
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with secret fields masked.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Channels.WeChat.APIKey)
	for _, acct := range cp.Channels.WeChat.Accounts {
		if acct != nil {
			maskNonEmpty(&acct.APIKey)
		}
	}
	maskNonEmpty(&cp.Agent.Token)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
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
