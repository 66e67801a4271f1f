package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the WeClaw bridge.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Agent    AgentConfig    `json:"agent"`
	Sessions SessionsConfig `json:"sessions"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Pairing  PairingConfig  `json:"pairing,omitempty"`
	mu       sync.RWMutex
}

// AgentConfig points at the external agent-dispatch runtime.
type AgentConfig struct {
	Endpoint   string `json:"endpoint"`              // HTTP endpoint receiving inbound envelopes
	Token      string `json:"token,omitempty"`       // bearer token for the endpoint
	AgentID    string `json:"agent_id,omitempty"`    // default agent (default "default")
	TimeoutSec int    `json:"timeout_sec,omitempty"` // per-dispatch timeout (default 120)
}

// SessionsConfig controls session key scoping.
type SessionsConfig struct {
	Scope   string `json:"scope,omitempty"`    // "per-sender" (default), "global"
	DmScope string `json:"dm_scope,omitempty"` // "main", "per-peer", "per-channel-peer" (default)
	MainKey string `json:"main_key,omitempty"` // main session key suffix (default "main")
}

// LoggingConfig controls the slog sink.
type LoggingConfig struct {
	File       string `json:"file,omitempty"`        // rotating log file (empty = stdout only)
	MaxSizeMB  int    `json:"max_size_mb,omitempty"` // rotate threshold (default 20)
	MaxBackups int    `json:"max_backups,omitempty"` // rotated files to keep (default 3)
}

// PairingConfig controls the DM pairing store.
type PairingConfig struct {
	Database string `json:"database,omitempty"` // sqlite path (default ~/.weclaw/pairing.db)
}
