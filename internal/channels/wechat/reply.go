package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/weclaw/internal/channels/wechat/proxy"
)

// textSender is the slice of the proxy client the dispatcher needs.
type textSender interface {
	SendText(ctx context.Context, wcID, content string) (*proxy.SendReceipt, error)
}

// outboundRate paces sends to roughly one per second with a small burst,
// keeping the account under the proxy's flood heuristics.
var outboundRate = rate.Limit(1)

const outboundBurst = 3

// ReplyDispatcher delivers agent replies to a single target (contact or
// chatroom). Long replies are chunked and the chunks sent strictly in
// order; a failed chunk aborts the rest so the peer never sees a reply
// with a hole in the middle.
type ReplyDispatcher struct {
	sender     textSender
	limiter    *rate.Limiter
	chunkLimit int
	chunkMode  string
	onIdle     func()
}

// NewReplyDispatcher creates a dispatcher. onIdle, when non-nil, is called
// after every completed delivery, including empty-text no-ops.
func NewReplyDispatcher(sender textSender, chunkLimit int, chunkMode string, onIdle func()) *ReplyDispatcher {
	return &ReplyDispatcher{
		sender:     sender,
		limiter:    rate.NewLimiter(outboundRate, outboundBurst),
		chunkLimit: chunkLimit,
		chunkMode:  chunkMode,
		onIdle:     onIdle,
	}
}

// Deliver sends text to the target. Whitespace-only text is a successful
// no-op. Chunks are sent sequentially; the first send error aborts the
// remainder and is returned to the caller.
func (d *ReplyDispatcher) Deliver(ctx context.Context, target, text string) error {
	defer d.markIdle()

	if strings.TrimSpace(text) == "" {
		slog.Debug("wechat reply: empty text, skipping", "target", target)
		return nil
	}

	chunks := SplitMessage(text, d.chunkLimit, d.chunkMode)
	slog.Debug("wechat reply: delivering", "target", target, "chunks", len(chunks))

	for i, chunk := range chunks {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send to %s: chunk %d/%d: %w", target, i+1, len(chunks), err)
		}

		receipt, err := d.sender.SendText(ctx, target, chunk)
		if err != nil {
			slog.Error("wechat reply: send failed, aborting remaining chunks",
				"target", target,
				"chunk", i+1,
				"total", len(chunks),
				"error", err,
			)
			return fmt.Errorf("send to %s: chunk %d/%d: %w", target, i+1, len(chunks), err)
		}
		slog.Debug("wechat reply: chunk sent",
			"target", target,
			"chunk", i+1,
			"msgId", receipt.MsgID,
		)
	}
	return nil
}

func (d *ReplyDispatcher) markIdle() {
	if d.onIdle != nil {
		d.onIdle()
	}
}
