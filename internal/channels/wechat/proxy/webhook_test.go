package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, handler func(*Envelope)) *CallbackServer {
	t.Helper()
	srv := NewCallbackServer("/webhook/wechat", nil, handler)
	if err := srv.Start(0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestCallbackServer_ValidPayload(t *testing.T) {
	received := make(chan *Envelope, 1)
	srv := startTestServer(t, func(env *Envelope) { received <- env })
	url := fmt.Sprintf("http://127.0.0.1:%d/webhook/wechat", srv.Port())

	resp, body := postJSON(t, url, `{"messageType": "60001", "wcId": "w", "fromUser": "u", "content": "hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body != "OK" {
		t.Errorf("body = %q", body)
	}

	select {
	case env := <-received:
		if env.FromUser != "u" {
			t.Errorf("FromUser = %q", env.FromUser)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestCallbackServer_Routing(t *testing.T) {
	srv := startTestServer(t, func(*Envelope) {})
	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Port())

	t.Run("wrong path", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/other", `{}`)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(base + "/webhook/wechat")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, GET should 404 not 405", resp.StatusCode)
		}
	})

	t.Run("query string ignored", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/webhook/wechat?token=x", `{"messageType": "30000"}`)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, _ := postJSON(t, base+"/webhook/wechat", `{not json`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestCallbackServer_AckDecoupledFromHandler(t *testing.T) {
	srv := startTestServer(t, func(*Envelope) {
		panic("handler exploded")
	})
	url := fmt.Sprintf("http://127.0.0.1:%d/webhook/wechat", srv.Port())

	resp, body := postJSON(t, url, `{"messageType": "60001", "fromUser": "u"}`)
	if resp.StatusCode != http.StatusOK || body != "OK" {
		t.Errorf("got %d %q, handler failures must not leak into the response", resp.StatusCode, body)
	}
}

func TestCallbackServer_RateLimit(t *testing.T) {
	limiter := &allowN{n: 2}
	srv := NewCallbackServer("/webhook/wechat", limiter, func(*Envelope) {})
	if err := srv.Start(0); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop(context.Background())
	url := fmt.Sprintf("http://127.0.0.1:%d/webhook/wechat", srv.Port())

	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, url, `{"messageType": "30000"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := postJSON(t, url, `{"messageType": "30000"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

// allowN permits the first n calls. Not concurrency-safe, fine for
// sequential test requests.
type allowN struct{ n int }

func (a *allowN) Allow(string) bool {
	a.n--
	return a.n >= 0
}

func TestCallbackServer_StopIdempotent(t *testing.T) {
	srv := NewCallbackServer("/webhook/wechat", nil, func(*Envelope) {})
	if err := srv.Start(0); err != nil {
		t.Fatal(err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
