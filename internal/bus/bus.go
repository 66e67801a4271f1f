package bus

import (
	"context"
	"log/slog"
)

const defaultQueueSize = 256

// MessageBus is an in-process router between channels and the agent runtime.
// Inbound and outbound queues are independent; publishing never blocks the
// caller — messages are dropped (and logged) if a queue is full, so a stalled
// consumer cannot back-pressure the webhook path.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a MessageBus with default queue capacity.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultQueueSize),
		outbound: make(chan OutboundMessage, defaultQueueSize),
	}
}

// PublishInbound enqueues a message from a channel for the agent runtime.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message",
			"channel", msg.Channel,
			"sender_id", msg.SenderID,
		)
	}
}

// ConsumeInbound blocks until a message is available or ctx is cancelled.
// Returns false when the context is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues a message for delivery to a channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("outbound queue full, dropping message",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
		)
	}
}

// SubscribeOutbound blocks until an outbound message is available or ctx is
// cancelled. Returns false when the context is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}

var _ MessageRouter = (*MessageBus)(nil)
