package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultLoginPollInterval = 5 * time.Second
	defaultLoginPollAttempts = 60 // ~5 minutes at the default interval
)

var (
	// ErrLoginTimeout means the user never confirmed within the poll budget.
	ErrLoginTimeout = errors.New("wechat login timed out")

	// ErrLoginAborted means the context was cancelled while waiting.
	ErrLoginAborted = errors.New("wechat login aborted")

	// ErrInvalidAPIKey means the proxy rejected the configured key.
	ErrInvalidAPIKey = errors.New("wechat api key invalid")
)

// LoginOptions tunes the login poll loop. Zero values use defaults.
type LoginOptions struct {
	PollInterval time.Duration
	PollAttempts int
}

// EnsureLoggedIn establishes a logged-in session with the proxy and returns
// the account identity.
//
// The flow mirrors the proxy's iPad login: check status first, and if the
// account is already logged in, no user interaction is needed. Otherwise a
// login instance is started and polled until the user confirms on their
// phone. The three failure modes are distinct errors: an invalid key
// (ErrInvalidAPIKey), the user never confirming (ErrLoginTimeout), and the
// caller giving up (ErrLoginAborted via context cancellation).
func EnsureLoggedIn(ctx context.Context, client *Client, opts LoginOptions) (*Identity, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultLoginPollInterval
	}
	attempts := opts.PollAttempts
	if attempts <= 0 {
		attempts = defaultLoginPollAttempts
	}

	status, err := client.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrLoginAborted
		}
		return nil, fmt.Errorf("check account status: %w", err)
	}
	if !status.IsValid() {
		return nil, ErrInvalidAPIKey
	}

	if status.IsLoggedIn {
		slog.Info("wechat already logged in",
			"wcId", status.WcID,
			"nickName", status.NickName,
		)
		return &Identity{
			WcID:     status.WcID,
			NickName: status.NickName,
		}, nil
	}

	slog.Info("wechat not logged in, starting login flow")

	handle, err := client.Login(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrLoginAborted
		}
		return nil, fmt.Errorf("start login: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ErrLoginAborted
		case <-ticker.C:
		}

		info, err := client.CheckLogin(ctx, handle.WID)
		if err != nil {
			// Transient poll errors are not fatal; the next tick retries.
			slog.Debug("login poll failed", "attempt", i+1, "error", err)
			continue
		}

		if info.LoggedIn() {
			slog.Info("wechat login successful",
				"wcId", info.WcID,
				"nickName", info.NickName,
			)
			return &Identity{
				WID:      handle.WID,
				WcID:     info.WcID,
				NickName: info.NickName,
				HeadURL:  info.HeadURL,
			}, nil
		}
	}

	return nil, ErrLoginTimeout
}
