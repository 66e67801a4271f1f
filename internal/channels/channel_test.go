package channels

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/weclaw/internal/bus"
)

func TestIsAllowed(t *testing.T) {
	b := bus.New()

	t.Run("empty allowlist allows everyone", func(t *testing.T) {
		c := NewBaseChannel("test", b, nil)
		if !c.IsAllowed("anyone") {
			t.Error("empty allowlist should allow all senders")
		}
	})

	t.Run("allowlist match", func(t *testing.T) {
		c := NewBaseChannel("test", b, []string{"wxid_friend", "@wxid_other"})
		if !c.IsAllowed("wxid_friend") {
			t.Error("listed sender should be allowed")
		}
		if !c.IsAllowed("wxid_other") {
			t.Error("@-prefixed entry should match bare id")
		}
		if c.IsAllowed("wxid_stranger") {
			t.Error("unlisted sender should be rejected")
		}
	})
}

func TestCheckPolicy(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("test", b, []string{"wxid_friend"})

	cases := []struct {
		name     string
		peerKind string
		dm       string
		group    string
		sender   string
		want     bool
	}{
		{"open dm default", "direct", "", "", "wxid_stranger", true},
		{"disabled dm", "direct", "disabled", "", "wxid_friend", false},
		{"allowlist dm hit", "direct", "allowlist", "", "wxid_friend", true},
		{"allowlist dm miss", "direct", "allowlist", "", "wxid_stranger", false},
		{"group uses group policy", "group", "disabled", "open", "wxid_stranger", true},
		{"group disabled", "group", "open", "disabled", "wxid_friend", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.CheckPolicy(tc.peerKind, tc.dm, tc.group, tc.sender)
			if got != tc.want {
				t.Errorf("CheckPolicy(%s, %s, %s, %s) = %v, want %v",
					tc.peerKind, tc.dm, tc.group, tc.sender, got, tc.want)
			}
		})
	}
}

func TestForwardRespectsAllowlist(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("test", b, []string{"wxid_friend"})

	c.Forward(bus.InboundMessage{SenderID: "wxid_stranger", Content: "nope"})
	c.Forward(bus.InboundMessage{SenderID: "wxid_friend", Content: "hi"})

	msg, ok := b.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected a message on the bus")
	}
	if msg.SenderID != "wxid_friend" {
		t.Errorf("SenderID = %q", msg.SenderID)
	}
	if msg.Channel != "test" {
		t.Errorf("Channel = %q, want channel name filled in", msg.Channel)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("Truncate long = %q", got)
	}
}

func TestWebhookRateLimiter(t *testing.T) {
	r := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		if !r.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if r.Allow("1.2.3.4") {
		t.Error("request over the window limit should be rejected")
	}
	if !r.Allow("5.6.7.8") {
		t.Error("different key should have its own budget")
	}
}
