package config

import "fmt"

// DefaultAccountID is the account used when only top-level WeChat fields are set.
const DefaultAccountID = "default"

const (
	defaultWebhookPort    = 18790
	defaultWebhookPath    = "/webhook/wechat"
	defaultTextChunkLimit = 2000
)

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	WeChat WeChatConfig `json:"wechat"`
}

// WeChatConfig configures the WeChat proxy channel. Supports a simplified
// single-account form (top-level fields) and a multi-account form (accounts
// map); the default account merges both, with accounts.default taking
// precedence over top-level fields.
type WeChatConfig struct {
	Enabled     *bool               `json:"enabled,omitempty"`
	APIKey      string              `json:"api_key,omitempty"`
	ProxyURL    string              `json:"proxy_url,omitempty"`
	WebhookHost string              `json:"webhook_host,omitempty"`
	WebhookPort int                 `json:"webhook_port,omitempty"`
	WebhookPath string              `json:"webhook_path,omitempty"`

	Accounts map[string]*WeChatAccountConfig `json:"accounts,omitempty"`

	AllowFrom      FlexibleStringSlice `json:"allow_from,omitempty"`
	DMPolicy       string              `json:"dm_policy,omitempty"`        // "open" (default), "pairing", "allowlist", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`     // "open" (default), "allowlist", "disabled"
	TextChunkLimit int                 `json:"text_chunk_limit,omitempty"` // default 2000
	ChunkMode      string              `json:"chunk_mode,omitempty"`       // "line" (default), "length"

	LoginPollSec      int `json:"login_poll_sec,omitempty"`      // default 5
	LoginPollAttempts int `json:"login_poll_attempts,omitempty"` // default 60 (~5 minutes)
}

// WeChatAccountConfig is one account inside the accounts map.
type WeChatAccountConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	Name        string `json:"name,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	ProxyURL    string `json:"proxy_url,omitempty"`
	WcID        string `json:"wc_id,omitempty"`
	NickName    string `json:"nick_name,omitempty"`
	WebhookHost string `json:"webhook_host,omitempty"`
	WebhookPort int    `json:"webhook_port,omitempty"`
	WebhookPath string `json:"webhook_path,omitempty"`
}

// ResolvedWeChatAccount is a fully-resolved account ready for channel start.
type ResolvedWeChatAccount struct {
	AccountID   string
	Enabled     bool
	Name        string
	APIKey      string
	ProxyURL    string
	WcID        string
	NickName    string
	WebhookHost string
	WebhookPort int
	WebhookPath string
}

// ListAccountIDs returns the enabled WeChat account IDs. A top-level api_key
// implies the default account; otherwise IDs come from the accounts map.
func (c *WeChatConfig) ListAccountIDs() []string {
	if c.APIKey != "" {
		return []string{DefaultAccountID}
	}
	ids := make([]string, 0, len(c.Accounts))
	for id, acct := range c.Accounts {
		if acct != nil && (acct.Enabled == nil || *acct.Enabled) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResolveAccount merges top-level and per-account fields into a resolved
// account. api_key and proxy_url are required; everything else has defaults.
func (c *WeChatConfig) ResolveAccount(accountID string) (*ResolvedWeChatAccount, error) {
	merged := WeChatAccountConfig{
		APIKey:      c.APIKey,
		ProxyURL:    c.ProxyURL,
		WebhookHost: c.WebhookHost,
		WebhookPort: c.WebhookPort,
		WebhookPath: c.WebhookPath,
	}
	enabled := c.Enabled == nil || *c.Enabled

	acct := c.Accounts[accountID]
	if accountID != DefaultAccountID && acct == nil {
		return nil, fmt.Errorf("wechat account %q not configured", accountID)
	}
	if acct != nil {
		if acct.APIKey != "" {
			merged.APIKey = acct.APIKey
		}
		if acct.ProxyURL != "" {
			merged.ProxyURL = acct.ProxyURL
		}
		if acct.WebhookHost != "" {
			merged.WebhookHost = acct.WebhookHost
		}
		if acct.WebhookPort != 0 {
			merged.WebhookPort = acct.WebhookPort
		}
		if acct.WebhookPath != "" {
			merged.WebhookPath = acct.WebhookPath
		}
		merged.Name = acct.Name
		merged.WcID = acct.WcID
		merged.NickName = acct.NickName
		if acct.Enabled != nil {
			enabled = *acct.Enabled
		}
	}

	if merged.APIKey == "" {
		return nil, fmt.Errorf("wechat account %q: api_key is required", accountID)
	}
	if merged.ProxyURL == "" {
		return nil, fmt.Errorf("wechat account %q: proxy_url is required", accountID)
	}

	port := merged.WebhookPort
	if port == 0 {
		port = defaultWebhookPort
	}
	path := merged.WebhookPath
	if path == "" {
		path = defaultWebhookPath
	}

	return &ResolvedWeChatAccount{
		AccountID:   accountID,
		Enabled:     enabled,
		Name:        merged.Name,
		APIKey:      merged.APIKey,
		ProxyURL:    merged.ProxyURL,
		WcID:        merged.WcID,
		NickName:    merged.NickName,
		WebhookHost: merged.WebhookHost,
		WebhookPort: port,
		WebhookPath: path,
	}, nil
}

// ResolveTextChunkLimit returns the configured chunk limit, or the default.
func (c *WeChatConfig) ResolveTextChunkLimit() int {
	if c.TextChunkLimit > 0 {
		return c.TextChunkLimit
	}
	return defaultTextChunkLimit
}
