package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/weclaw/internal/bus"
	"github.com/nextlevelbuilder/weclaw/internal/config"
	"github.com/nextlevelbuilder/weclaw/internal/sessions"
)

// Consumer drains inbound messages from the bus, dispatches them to the
// agent runtime, and publishes the replies back as outbound messages.
type Consumer struct {
	bus      *bus.MessageBus
	agent    *AgentClient
	agentID  string
	sessions config.SessionsConfig
	timeout  time.Duration
}

// NewConsumer wires the consumer. agentID defaults to "default".
func NewConsumer(msgBus *bus.MessageBus, agent *AgentClient, agentID string, sessionsCfg config.SessionsConfig, timeout time.Duration) *Consumer {
	if agentID == "" {
		agentID = "default"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Consumer{
		bus:      msgBus,
		agent:    agent,
		agentID:  agentID,
		sessions: sessionsCfg,
		timeout:  timeout,
	}
}

// Run consumes until the context is cancelled. Dispatch failures are
// logged and swallowed; one bad message never stops the loop.
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("inbound consumer started", "agent_id", c.agentID)

	for {
		msg, ok := c.bus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("inbound consumer stopped")
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg bus.InboundMessage) {
	runID := uuid.NewString()
	kind := sessions.PeerKindFromGroup(msg.PeerKind == "group")
	sessionKey := sessions.BuildScopedSessionKey(
		c.agentID, msg.Channel, kind, msg.ChatID,
		c.sessions.Scope, c.sessions.DmScope, c.sessions.MainKey,
	)

	slog.Info("dispatching to agent",
		"run_id", runID,
		"session", sessionKey,
		"channel", msg.Channel,
		"sender_id", msg.SenderID,
	)

	dispatchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.agent.Dispatch(dispatchCtx, &DispatchRequest{
		RunID:      runID,
		AgentID:    c.agentID,
		SessionKey: sessionKey,
		Channel:    msg.Channel,
		AccountID:  msg.AccountID,
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		PeerKind:   msg.PeerKind,
		Body:       FormatAgentBody(msg),
		RawBody:    msg.Content,
		Timestamp:  msg.Timestamp,
	})
	if err != nil {
		slog.Error("agent dispatch failed",
			"run_id", runID,
			"session", sessionKey,
			"error", err,
		)
		return
	}

	replies := resp.ReplyTexts()
	slog.Info("agent dispatch complete", "run_id", runID, "replies", len(replies))

	for _, text := range replies {
		c.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: text,
		})
	}
}

// FormatAgentBody renders the envelope text the agent sees: channel,
// sender attribution and timestamp, then the message with the speaker
// prefixed so group transcripts stay readable.
func FormatAgentBody(msg bus.InboundMessage) string {
	speaker := msg.SenderName
	if speaker == "" {
		speaker = msg.SenderID
	}

	from := msg.SenderID
	if msg.PeerKind == "group" {
		from = fmt.Sprintf("%s:%s", msg.ChatID, msg.SenderID)
	}

	ts := time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] from %s at %s\n", msg.Channel, from, ts)
	fmt.Fprintf(&b, "%s: %s", speaker, msg.Content)
	return b.String()
}
