package bus

import (
	"context"
	"testing"
	"time"
)

func TestMessageBus_InboundRoundTrip(t *testing.T) {
	b := New()
	b.PublishInbound(InboundMessage{Channel: "wechat", SenderID: "wxid_a", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected message, got none")
	}
	if msg.SenderID != "wxid_a" || msg.Content != "hi" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestMessageBus_ConsumeCancelled(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("expected ok=false on cancelled context")
	}
	if _, ok := b.SubscribeOutbound(ctx); ok {
		t.Error("expected ok=false on cancelled context")
	}
}

func TestMessageBus_PublishNeverBlocks(t *testing.T) {
	b := New()
	// Fill well past queue capacity with no consumer; must not deadlock.
	for i := 0; i < defaultQueueSize*2; i++ {
		b.PublishInbound(InboundMessage{Channel: "wechat"})
		b.PublishOutbound(OutboundMessage{Channel: "wechat"})
	}
}
