// Package wechat implements the WeChat channel backed by an HTTP proxy
// service. The proxy owns the WeChat protocol; this channel logs the
// account in, receives message callbacks over a webhook, and sends
// replies back through the proxy's REST API.
package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/weclaw/internal/bus"
	"github.com/nextlevelbuilder/weclaw/internal/channels"
	"github.com/nextlevelbuilder/weclaw/internal/channels/wechat/proxy"
	"github.com/nextlevelbuilder/weclaw/internal/config"
	"github.com/nextlevelbuilder/weclaw/internal/store"
)

const pairingDebounceTime = 60 * time.Second

// groupSuffix marks chatroom ids in outbound targets.
const groupSuffix = "@chatroom"

// Channel bridges one WeChat account to the message bus.
type Channel struct {
	*channels.BaseChannel
	account *config.ResolvedWeChatAccount
	cfg     config.WeChatConfig

	client     *proxy.Client
	dedup      *DedupCache
	dispatcher *ReplyDispatcher
	callback   *proxy.CallbackServer

	pairingService  store.PairingStore
	pairingDebounce sync.Map // senderID → time.Time

	mu       sync.Mutex
	identity *proxy.Identity
}

// New creates a WeChat channel for a resolved account. pairingSvc may be
// nil, in which case the pairing DM policy falls back to the allowlist.
func New(account *config.ResolvedWeChatAccount, cfg config.WeChatConfig, msgBus *bus.MessageBus, pairingSvc store.PairingStore) (*Channel, error) {
	client, err := proxy.NewClient(account.ProxyURL, account.APIKey)
	if err != nil {
		return nil, err
	}

	// Non-default accounts get a suffixed channel name so outbound routing
	// finds the right account.
	name := "wechat"
	if account.AccountID != config.DefaultAccountID {
		name = "wechat:" + account.AccountID
	}
	base := channels.NewBaseChannel(name, msgBus, cfg.AllowFrom)

	c := &Channel{
		BaseChannel:    base,
		account:        account,
		cfg:            cfg,
		client:         client,
		dedup:          NewDedupCache(),
		pairingService: pairingSvc,
	}
	c.dispatcher = NewReplyDispatcher(client, cfg.ResolveTextChunkLimit(), cfg.ChunkMode, func() {
		slog.Debug("wechat reply dispatch idle", "account", account.AccountID)
	})
	return c, nil
}

// Identity returns the logged-in account identity, nil before Start.
func (c *Channel) Identity() *proxy.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Client exposes the proxy client for CLI commands (status, contacts).
func (c *Channel) Client() *proxy.Client { return c.client }

// Start logs the account in, starts the webhook listener and registers
// its URL with the proxy. Blocks until login completes or fails.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting wechat channel",
		"account", c.account.AccountID,
		"proxy_url", c.account.ProxyURL,
	)

	identity, err := proxy.EnsureLoggedIn(ctx, c.client, proxy.LoginOptions{
		PollInterval: time.Duration(c.cfg.LoginPollSec) * time.Second,
		PollAttempts: c.cfg.LoginPollAttempts,
	})
	if err != nil {
		return fmt.Errorf("wechat login: %w", err)
	}
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()

	limiter := channels.NewWebhookRateLimiter()
	c.callback = proxy.NewCallbackServer(c.account.WebhookPath, limiter, c.onEnvelope)
	if err := c.callback.Start(c.account.WebhookPort); err != nil {
		return err
	}

	host := c.account.WebhookHost
	if host == "" {
		host = detectLocalIP()
		slog.Warn("webhook_host not configured, using detected local IP",
			"ip", host,
			"hint", "set channels.wechat.webhook_host to your public address",
		)
	}
	webhookURL := fmt.Sprintf("http://%s:%d%s", host, c.callback.Port(), c.account.WebhookPath)

	slog.Info("registering webhook with proxy", "wcId", identity.WcID, "url", webhookURL)
	if err := c.client.RegisterWebhook(ctx, identity.WcID, webhookURL); err != nil {
		_ = c.callback.Stop(ctx)
		return fmt.Errorf("register webhook: %w", err)
	}

	c.SetRunning(true)
	slog.Info("wechat channel started",
		"account", c.account.AccountID,
		"wcId", identity.WcID,
		"nickName", identity.NickName,
		"port", c.callback.Port(),
	)
	return nil
}

// Stop shuts down the webhook listener.
func (c *Channel) Stop(ctx context.Context) error {
	slog.Info("stopping wechat channel", "account", c.account.AccountID)
	if c.callback != nil {
		_ = c.callback.Stop(ctx)
	}
	c.SetRunning(false)
	return nil
}

// onEnvelope handles one webhook callback. Runs on a per-callback
// goroutine; everything here must be non-blocking toward the proxy.
func (c *Channel) onEnvelope(env *proxy.Envelope) {
	msg := env.Normalize(time.Now)
	if msg == nil {
		return
	}

	if !c.dedup.TryAdmit(msg.ID) {
		slog.Debug("skipping duplicate wechat message", "message_id", msg.ID)
		return
	}

	peerKind := "direct"
	if msg.IsGroup {
		peerKind = "group"
	}

	slog.Info("wechat message received",
		"account", c.account.AccountID,
		"kind", msg.Kind,
		"sender_id", msg.SenderID,
		"peer_kind", peerKind,
		"thread", msg.ThreadID,
		"preview", channels.Truncate(msg.Content, 160),
	)

	// Only text reaches the agent; media kinds are acknowledged and dropped.
	if msg.Kind != "text" {
		slog.Debug("ignoring non-text wechat message", "kind", msg.Kind, "message_id", msg.ID)
		return
	}

	if msg.IsGroup {
		if !c.CheckPolicy("group", "", c.cfg.GroupPolicy, msg.SenderID) {
			slog.Debug("wechat group message rejected by policy", "sender_id", msg.SenderID)
			return
		}
	} else if !c.checkDMPolicy(msg.SenderID) {
		return
	}

	c.Forward(bus.InboundMessage{
		Channel:    c.Name(),
		AccountID:  c.account.AccountID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		ChatID:     msg.ThreadID,
		Content:    msg.Content,
		PeerKind:   peerKind,
		MessageID:  msg.ID,
		Timestamp:  msg.Timestamp,
		Metadata: map[string]string{
			"group_id":     msg.GroupID,
			"recipient_id": msg.RecipientID,
		},
	})
}

// checkDMPolicy gates direct messages. Default policy is open: the proxy
// account only receives messages from existing WeChat contacts, which is
// already a consent boundary.
func (c *Channel) checkDMPolicy(senderID string) bool {
	dmPolicy := c.cfg.DMPolicy
	if dmPolicy == "" {
		dmPolicy = "open"
	}

	switch dmPolicy {
	case "disabled":
		slog.Debug("wechat DM rejected: disabled", "sender_id", senderID)
		return false
	case "open":
		return true
	case "allowlist":
		if !c.IsAllowed(senderID) {
			slog.Debug("wechat DM rejected by allowlist", "sender_id", senderID)
			return false
		}
		return true
	default: // "pairing"
		paired := false
		if c.pairingService != nil {
			paired = c.pairingService.IsPaired(senderID, c.Name())
		}
		inAllowList := c.HasAllowList() && c.IsAllowed(senderID)

		if paired || inAllowList {
			return true
		}

		c.sendPairingReply(senderID)
		return false
	}
}

// sendPairingReply sends a pairing code to the sender, debounced so
// repeated messages do not spam codes.
func (c *Channel) sendPairingReply(senderID string) {
	if c.pairingService == nil {
		return
	}

	if lastSent, ok := c.pairingDebounce.Load(senderID); ok {
		if time.Since(lastSent.(time.Time)) < pairingDebounceTime {
			return
		}
	}

	code, err := c.pairingService.RequestPairing(senderID, c.Name(), senderID, "default")
	if err != nil {
		slog.Debug("wechat pairing request failed", "sender_id", senderID, "error", err)
		return
	}

	replyText := fmt.Sprintf(
		"WeClaw: access not configured.\n\nYour WeChat ID: %s\n\nPairing code: %s\n\nAsk the bot owner to approve with:\n  weclaw pairing approve %s",
		senderID, code, code,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := c.client.SendText(ctx, senderID, replyText); err != nil {
		slog.Debug("wechat pairing reply failed", "sender_id", senderID, "error", err)
		return
	}
	c.pairingDebounce.Store(senderID, time.Now())
}

// Send delivers an outbound message. Text goes through the chunking reply
// dispatcher; a metadata image_url is sent as an image first.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("wechat send: chat id is required")
	}

	if imageURL := msg.Metadata["image_url"]; imageURL != "" {
		if _, err := c.client.SendImage(ctx, msg.ChatID, imageURL); err != nil {
			return fmt.Errorf("send image to %s: %w", msg.ChatID, err)
		}
	}

	return c.dispatcher.Deliver(ctx, msg.ChatID, msg.Content)
}

// IsGroupTarget reports whether the chat id names a chatroom.
func IsGroupTarget(chatID string) bool {
	return strings.HasSuffix(chatID, groupSuffix)
}

// detectLocalIP returns the first non-loopback IPv4 address, falling back
// to localhost. Used when no public webhook host is configured.
func detectLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "localhost"
}
