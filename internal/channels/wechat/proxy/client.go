package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 60 * time.Second

// Client talks to the WeChat proxy service. It is the only place in the
// codebase that knows the proxy's wire format; callers see typed results
// and plain errors.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a proxy client. baseURL and apiKey are required.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("wechat proxy: base url is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("wechat proxy: api key is required")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}, nil
}

// BaseURL returns the configured proxy base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// post issues a POST to the proxy and decodes the application envelope.
// Codes 1000/1001/1002 are success variants; any other code is an error
// carrying the proxy's message. When out is non-nil, the data field is
// decoded into it (falling back to the whole body when data is absent,
// matching the proxy's older response shape).
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("wechat proxy: encode %s: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("wechat proxy: build %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("wechat proxy: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("wechat proxy: read %s: %w", endpoint, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wechat proxy: %s: http %d", endpoint, resp.StatusCode)
		}
		return fmt.Errorf("wechat proxy: decode %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := envelope.Message
		if msg == "" {
			msg = envelope.Msg
		}
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return fmt.Errorf("wechat proxy: %s: %s", endpoint, msg)
	}

	if envelope.Code != "" && !isSuccessCode(envelope.Code) {
		msg := envelope.Message
		if msg == "" {
			msg = envelope.Msg
		}
		if msg == "" {
			msg = "code " + envelope.Code
		}
		return fmt.Errorf("wechat proxy: %s: %s", endpoint, msg)
	}

	if out == nil {
		return nil
	}

	data := envelope.Data
	if len(data) == 0 || string(data) == "null" {
		data = raw
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("wechat proxy: decode %s data: %w", endpoint, err)
	}
	return nil
}

// Status fetches the current account status (validity, login state, quota).
func (c *Client) Status(ctx context.Context) (*AccountStatus, error) {
	var status AccountStatus
	if err := c.post(ctx, "/v1/account/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Login starts a new iPad login instance and returns its handle.
// The user completes login by confirming on their phone; poll with CheckLogin.
func (c *Client) Login(ctx context.Context) (*LoginHandle, error) {
	var handle LoginHandle
	payload := map[string]string{
		"deviceType": "win",
		"proxy":      "10",
	}
	if err := c.post(ctx, "/v1/iPadLogin", payload, &handle); err != nil {
		return nil, err
	}
	if handle.WID == "" {
		return nil, fmt.Errorf("wechat proxy: login returned no wId")
	}
	return &handle, nil
}

// CheckLogin polls a pending login instance. A non-logged_in status means
// the user has not confirmed yet.
func (c *Client) CheckLogin(ctx context.Context, wID string) (*LoginInfo, error) {
	var info LoginInfo
	if err := c.post(ctx, "/v1/getIPadLoginInfo", map[string]string{"wId": wID}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SendText sends a plain text message to a contact or chatroom.
// The proxy resolves the login instance from the wcId.
func (c *Client) SendText(ctx context.Context, wcID, content string) (*SendReceipt, error) {
	var receipt SendReceipt
	payload := map[string]string{
		"wcId":    wcID,
		"content": content,
	}
	if err := c.post(ctx, "/v1/sendText", payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SendImage sends an image by URL to a contact or chatroom.
func (c *Client) SendImage(ctx context.Context, wcID, imageURL string) (*SendReceipt, error) {
	var receipt SendReceipt
	payload := map[string]string{
		"wcId":     wcID,
		"imageUrl": imageURL,
	}
	if err := c.post(ctx, "/v1/sendImage2", payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetContacts fetches the friend and chatroom lists for an account.
func (c *Client) GetContacts(ctx context.Context, wcID string) (*Contacts, error) {
	var contacts Contacts
	if err := c.post(ctx, "/v1/getAddressList", map[string]string{"wcId": wcID}, &contacts); err != nil {
		return nil, err
	}
	if contacts.Friends == nil {
		contacts.Friends = []string{}
	}
	if contacts.Chatrooms == nil {
		contacts.Chatrooms = []string{}
	}
	return &contacts, nil
}

// RegisterWebhook points the proxy's message callbacks at webhookURL.
func (c *Client) RegisterWebhook(ctx context.Context, wcID, webhookURL string) error {
	payload := map[string]string{
		"wcId":       wcID,
		"webhookUrl": webhookURL,
	}
	return c.post(ctx, "/v1/webhook/register", payload, nil)
}
