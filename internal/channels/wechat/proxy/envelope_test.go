package proxy

import (
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.UnixMilli(1700000000000)
}

func mustParse(t *testing.T, body string) *Envelope {
	t.Helper()
	env, err := ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	return env
}

func TestNormalize_FlatDirectText(t *testing.T) {
	env := mustParse(t, `{
		"messageType": "60001",
		"wcId": "wxid_bot",
		"fromUser": "wxid_sender",
		"toUser": "wxid_bot",
		"content": "hello world",
		"newMsgId": 12345,
		"timestamp": 1699999999000
	}`)

	msg := env.Normalize(fixedNow)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.ID != "12345" {
		t.Errorf("ID = %q", msg.ID)
	}
	if msg.Kind != "text" {
		t.Errorf("Kind = %q", msg.Kind)
	}
	if msg.SenderID != "wxid_sender" || msg.SenderName != "wxid_sender" {
		t.Errorf("sender = %q/%q", msg.SenderID, msg.SenderName)
	}
	if msg.RecipientID != "wxid_bot" {
		t.Errorf("RecipientID = %q", msg.RecipientID)
	}
	if msg.Content != "hello world" {
		t.Errorf("Content = %q", msg.Content)
	}
	if msg.Timestamp != 1699999999000 {
		t.Errorf("Timestamp = %d", msg.Timestamp)
	}
	if msg.IsGroup || msg.GroupID != "" {
		t.Errorf("direct message marked as group: %+v", msg)
	}
	if msg.ThreadID != "wxid_sender" {
		t.Errorf("ThreadID = %q", msg.ThreadID)
	}
}

func TestNormalize_NestedShapeMatchesFlat(t *testing.T) {
	flat := mustParse(t, `{
		"messageType": "60001",
		"wcId": "wxid_bot",
		"fromUser": "wxid_sender",
		"content": "same text",
		"newMsgId": "777",
		"timestamp": 1699999999000
	}`)
	nested := mustParse(t, `{
		"messageType": "60001",
		"wcId": "wxid_bot",
		"data": {
			"fromUser": "wxid_sender",
			"content": "same text",
			"newMsgId": "777",
			"timestamp": 1699999999000
		}
	}`)

	a := flat.Normalize(fixedNow)
	b := nested.Normalize(fixedNow)
	if a == nil || b == nil {
		t.Fatal("both shapes should normalize")
	}
	if *a != *b {
		t.Errorf("shape divergence:\n flat = %+v\n nested = %+v", *a, *b)
	}
}

func TestNormalize_GroupText(t *testing.T) {
	env := mustParse(t, `{
		"messageType": "80001",
		"wcId": "wxid_bot",
		"fromUser": "wxid_member",
		"fromGroup": "room123@chatroom",
		"content": "group hello",
		"newMsgId": 555
	}`)

	msg := env.Normalize(fixedNow)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if !msg.IsGroup {
		t.Error("IsGroup should be true for 80001")
	}
	if msg.GroupID != "room123@chatroom" {
		t.Errorf("GroupID = %q", msg.GroupID)
	}
	if msg.ThreadID != "room123@chatroom" {
		t.Errorf("ThreadID = %q, group messages thread on the room", msg.ThreadID)
	}
	if msg.SenderID != "wxid_member" {
		t.Errorf("SenderID = %q", msg.SenderID)
	}
}

func TestNormalize_GroupWithoutRoomDegradesToSender(t *testing.T) {
	env := mustParse(t, `{
		"messageType": "80001",
		"wcId": "wxid_bot",
		"fromUser": "wxid_member",
		"content": "no room id",
		"newMsgId": 1
	}`)

	msg := env.Normalize(fixedNow)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.GroupID != "" {
		t.Errorf("GroupID = %q, want empty", msg.GroupID)
	}
	if msg.ThreadID != "wxid_member" {
		t.Errorf("ThreadID = %q, want sender fallback", msg.ThreadID)
	}
	if msg.IsGroup {
		t.Error("group code without a room id should degrade to direct")
	}
}

func TestNormalize_Dropped(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"offline notification", `{"messageType": "30000", "wcId": "wxid_bot", "content": "kicked"}`},
		{"unknown type family", `{"messageType": "90001", "wcId": "wxid_bot", "fromUser": "x"}`},
		{"missing type", `{"wcId": "wxid_bot", "fromUser": "x"}`},
		{"missing sender flat", `{"messageType": "60001", "wcId": "wxid_bot", "content": "hi"}`},
		{"missing sender nested", `{"messageType": "60001", "wcId": "wxid_bot", "data": {"content": "hi"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := mustParse(t, tc.body)
			if msg := env.Normalize(fixedNow); msg != nil {
				t.Errorf("expected nil, got %+v", msg)
			}
		})
	}
}

func TestNormalize_Fallbacks(t *testing.T) {
	env := mustParse(t, `{
		"messageType": "60001",
		"wcId": "wxid_bot",
		"fromUser": "wxid_sender",
		"content": "no id, no timestamp"
	}`)

	msg := env.Normalize(fixedNow)
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.ID != "1700000000000" {
		t.Errorf("ID = %q, want clock-derived fallback", msg.ID)
	}
	if msg.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want clock fallback", msg.Timestamp)
	}
}

func TestTypeCode_NumberOrString(t *testing.T) {
	env := mustParse(t, `{"messageType": 60001, "wcId": "w", "fromUser": "u", "newMsgId": "9"}`)
	if env.MessageType != TypeDirectText {
		t.Errorf("MessageType = %q", env.MessageType)
	}

	env = mustParse(t, `{"messageType": "80002", "wcId": "w", "fromUser": "u"}`)
	if env.MessageType != TypeGroupImage {
		t.Errorf("MessageType = %q", env.MessageType)
	}
}

func TestTypeCode_ContentKind(t *testing.T) {
	cases := map[TypeCode]string{
		TypeDirectText:  "text",
		TypeGroupText:   "text",
		TypeDirectImage: "image",
		TypeGroupVideo:  "video",
		TypeDirectVoice: "voice",
		TypeGroupFile:   "file",
		TypeCode("60099"): "unknown",
		TypeOffline:       "unknown",
	}
	for code, want := range cases {
		if got := code.ContentKind(); got != want {
			t.Errorf("ContentKind(%s) = %q, want %q", code, got, want)
		}
	}
}
