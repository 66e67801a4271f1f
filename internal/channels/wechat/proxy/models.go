// Package proxy implements the HTTP client and callback surface for the
// WeChat proxy service: request/response models, the webhook listener that
// receives message callbacks, and the iPad login flow.
package proxy

import (
	"encoding/json"
	"strconv"
)

// apiResponse is the wire envelope every proxy endpoint returns.
// code is an application-level status string, distinct from the HTTP status.
type apiResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// Application codes the proxy treats as success.
// 1000: success, 1001: delayed (login required), 1002: success with warning.
const (
	codeOK      = "1000"
	codeDelayed = "1001"
	codeWarning = "1002"
)

func isSuccessCode(code string) bool {
	return code == codeOK || code == codeDelayed || code == codeWarning
}

// AccountStatus is the proxy-side view of the account.
type AccountStatus struct {
	Valid      *bool  `json:"valid"`
	WcID       string `json:"wcId"`
	IsLoggedIn bool   `json:"isLoggedIn"`
	NickName   string `json:"nickName"`
	Tier       string `json:"tier"`
	Quota      *Quota `json:"quota,omitempty"`
}

// IsValid reports whether the proxy accepts the API key. Older proxy
// responses omit the valid field entirely, which means valid.
func (s *AccountStatus) IsValid() bool { return s.Valid == nil || *s.Valid }

// Quota reports the daily message budget for metered API tiers.
type Quota struct {
	MaxMessagesPerDay int `json:"maxMessagesPerDay"`
	UsedToday         int `json:"usedToday"`
}

// LoginHandle is returned by Login and identifies the pending login instance.
type LoginHandle struct {
	WID string `json:"wId"`
}

// LoginInfo is one poll result from CheckLogin.
type LoginInfo struct {
	Status   string `json:"status"` // "logged_in" or anything else (waiting)
	WcID     string `json:"wcId"`
	NickName string `json:"nickName"`
	HeadURL  string `json:"headUrl"`
}

// LoggedIn reports whether the poll result represents a completed login.
func (l *LoginInfo) LoggedIn() bool { return l.Status == "logged_in" }

// Identity is the stable account identity established by a successful login.
type Identity struct {
	WID      string // proxy login instance id
	WcID     string // WeChat account id
	NickName string
	HeadURL  string
}

// SendReceipt is returned by the send endpoints.
type SendReceipt struct {
	MsgID      int64 `json:"msgId"`
	NewMsgID   int64 `json:"newMsgId"`
	CreateTime int64 `json:"createTime"`
}

// Contacts is the address list of an account.
type Contacts struct {
	Friends   []string `json:"friends"`
	Chatrooms []string `json:"chatrooms"`
}

// TypeCode is a WeChat callback message-type code. The proxy sends it as a
// string in most payloads but as a bare number in some, so both are accepted.
type TypeCode string

func (t *TypeCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TypeCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TypeCode(n.String())
	return nil
}

// Known message-type codes. The first digit carries the chat kind:
// 6xxxx is a direct chat, 8xxxx a group chat. The trailing digits carry
// the content type and are shared between the two families.
const (
	TypeOffline TypeCode = "30000"

	TypeDirectText  TypeCode = "60001"
	TypeDirectImage TypeCode = "60002"
	TypeDirectVideo TypeCode = "60003"
	TypeDirectVoice TypeCode = "60004"
	TypeDirectFile  TypeCode = "60008"

	TypeGroupText  TypeCode = "80001"
	TypeGroupImage TypeCode = "80002"
	TypeGroupVideo TypeCode = "80003"
	TypeGroupVoice TypeCode = "80004"
	TypeGroupFile  TypeCode = "80008"
)

// IsDirect reports whether the code belongs to the direct-chat family.
func (t TypeCode) IsDirect() bool { return len(t) > 0 && t[0] == '6' }

// IsGroup reports whether the code belongs to the group-chat family.
func (t TypeCode) IsGroup() bool { return len(t) > 0 && t[0] == '8' }

// ContentKind maps the code to a content kind: "text", "image", "video",
// "voice", "file", or "unknown".
func (t TypeCode) ContentKind() string {
	if !t.IsDirect() && !t.IsGroup() {
		return "unknown"
	}
	switch t[1:] {
	case "0001":
		return "text"
	case "0002":
		return "image"
	case "0003":
		return "video"
	case "0004":
		return "voice"
	case "0008":
		return "file"
	default:
		return "unknown"
	}
}

// flexibleID accepts string or numeric message ids and keeps the canonical
// decimal string form.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexibleID(n.String())
	return nil
}
