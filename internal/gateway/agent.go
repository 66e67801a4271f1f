// Package gateway connects the message bus to the external agent-dispatch
// runtime: inbound messages become agent dispatch requests, agent replies
// become outbound messages.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AgentClient calls the external agent-dispatch HTTP endpoint.
type AgentClient struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewAgentClient creates a client for the dispatch endpoint. timeout bounds
// a whole dispatch including agent thinking time.
func NewAgentClient(endpoint, token string, timeout time.Duration) (*AgentClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("agent endpoint is required")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AgentClient{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// DispatchRequest is one inbound message handed to the agent runtime.
type DispatchRequest struct {
	RunID      string `json:"run_id"`
	AgentID    string `json:"agent_id"`
	SessionKey string `json:"session_key"`
	Channel    string `json:"channel"`
	AccountID  string `json:"account_id,omitempty"`
	ChatID     string `json:"chat_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	PeerKind   string `json:"peer_kind"`
	Body       string `json:"body"`     // formatted envelope the agent sees
	RawBody    string `json:"raw_body"` // original message text
	Timestamp  int64  `json:"timestamp"`
}

// DispatchResponse carries the agent's replies. Either a single text or a
// reply list; both may be empty when the agent chooses to stay silent.
type DispatchResponse struct {
	Text    string   `json:"text,omitempty"`
	Replies []string `json:"replies,omitempty"`
}

// ReplyTexts flattens the response into the ordered list of reply texts.
func (r *DispatchResponse) ReplyTexts() []string {
	if len(r.Replies) > 0 {
		return r.Replies
	}
	if r.Text != "" {
		return []string{r.Text}
	}
	return nil
}

// Dispatch sends the request and decodes the agent's replies.
func (c *AgentClient) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("agent dispatch: encode: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("agent dispatch: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent dispatch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("agent dispatch: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent dispatch: http %d: %s", resp.StatusCode, truncateForError(body))
	}

	var out DispatchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("agent dispatch: decode response: %w", err)
	}
	return &out, nil
}

func truncateForError(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
