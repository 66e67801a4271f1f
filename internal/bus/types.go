package bus

import "context"

// InboundMessage represents a message received from a channel (WeChat, etc.)
// and handed to the agent routing layer.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	AccountID  string            `json:"account_id,omitempty"` // multi-account channels
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	PeerKind   string            `json:"peer_kind,omitempty"` // "direct" or "group" (used for session key)
	MessageID  string            `json:"message_id,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"` // unix millis, source-assigned when known
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// MessageRouter abstracts inbound/outbound message routing between channels
// and the agent runtime.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
