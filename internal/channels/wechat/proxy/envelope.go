package proxy

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"
)

// Envelope is a raw webhook callback payload. The proxy delivers two shapes:
// a flat one with the message fields at the top level, and a nested one with
// the fields under data. Both decode into the same struct.
type Envelope struct {
	MessageType TypeCode   `json:"messageType"`
	WcID        string     `json:"wcId"`
	FromUser    string     `json:"fromUser"`
	ToUser      string     `json:"toUser"`
	FromGroup   string     `json:"fromGroup"`
	Content     string     `json:"content"`
	NewMsgID    flexibleID `json:"newMsgId"`
	Timestamp   int64      `json:"timestamp"`
	ContentType string     `json:"contentType"`

	Data *envelopeData `json:"data,omitempty"`
}

type envelopeData struct {
	FromUser  string     `json:"fromUser"`
	ToUser    string     `json:"toUser"`
	FromGroup string     `json:"fromGroup"`
	Content   string     `json:"content"`
	NewMsgID  flexibleID `json:"newMsgId"`
	Timestamp int64      `json:"timestamp"`
}

// ParseEnvelope decodes a webhook body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Message is a normalized inbound WeChat message, independent of which
// payload shape the proxy used.
type Message struct {
	ID          string // newMsgId, or a time-derived fallback
	Kind        string // "text", "image", "video", "voice", "file", "unknown"
	SenderID    string
	SenderName  string
	RecipientID string // receiving account wcId
	Content     string
	Timestamp   int64  // unix millis
	ThreadID    string // chatroom id for groups, sender id for DMs
	GroupID     string // set only for group messages
	IsGroup     bool
}

// flatten resolves the flat-vs-nested shape split: a top-level fromUser wins,
// otherwise fields come from data (timestamp falls back to the top level).
func (e *Envelope) flatten() (fromUser, toUser, fromGroup, content string, id flexibleID, ts int64) {
	if e.FromUser != "" {
		return e.FromUser, e.ToUser, e.FromGroup, e.Content, e.NewMsgID, e.Timestamp
	}
	if e.Data == nil {
		return "", e.ToUser, "", e.Content, e.NewMsgID, e.Timestamp
	}
	ts = e.Data.Timestamp
	if ts == 0 {
		ts = e.Timestamp
	}
	return e.Data.FromUser, e.Data.ToUser, e.Data.FromGroup, e.Data.Content, e.Data.NewMsgID, ts
}

// offlineContent returns the payload content for offline notifications,
// which arrive in either shape.
func (e *Envelope) offlineContent() string {
	if e.Content != "" {
		return e.Content
	}
	if e.Data != nil {
		return e.Data.Content
	}
	return ""
}

// Normalize converts the envelope into a Message, or nil when the payload
// is not a chat message (offline notifications, unknown type families,
// payloads with no sender). now supplies the clock for id and timestamp
// fallbacks; pass time.Now outside tests.
func (e *Envelope) Normalize(now func() time.Time) *Message {
	if now == nil {
		now = time.Now
	}

	if e.MessageType == TypeOffline {
		slog.Warn("wechat account offline",
			"wcId", e.WcID,
			"detail", e.offlineContent(),
		)
		return nil
	}

	if !e.MessageType.IsDirect() && !e.MessageType.IsGroup() {
		slog.Debug("unhandled wechat message type", "messageType", string(e.MessageType))
		return nil
	}

	fromUser, _, fromGroup, content, id, ts := e.flatten()
	if fromUser == "" {
		slog.Debug("wechat message missing fromUser, skipping", "messageType", string(e.MessageType))
		return nil
	}

	// A group-family code without a group id degrades to a direct message
	// rather than being dropped.
	isGroup := e.MessageType.IsGroup() && fromGroup != ""

	msg := &Message{
		ID:          string(id),
		Kind:        e.MessageType.ContentKind(),
		SenderID:    fromUser,
		SenderName:  fromUser,
		RecipientID: e.WcID,
		Content:     content,
		Timestamp:   ts,
		ThreadID:    fromUser,
		IsGroup:     isGroup,
	}

	if isGroup {
		msg.GroupID = fromGroup
		msg.ThreadID = fromGroup
	}

	if msg.ID == "" {
		// Fallback when the proxy omits newMsgId. Millisecond resolution
		// means two id-less messages in the same millisecond collide and
		// the second one is deduplicated away.
		msg.ID = strconv.FormatInt(now().UnixMilli(), 10)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = now().UnixMilli()
	}

	return msg
}
