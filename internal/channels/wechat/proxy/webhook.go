package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const maxCallbackBody = 1 << 20 // 1 MiB

// RateLimiter gates callback processing per source key.
type RateLimiter interface {
	Allow(key string) bool
}

// CallbackServer receives message callbacks from the WeChat proxy.
//
// The HTTP surface is deliberately dumb: exactly one route exists, the
// response is decided by request validity alone, and message processing
// happens after the response is written. The proxy retries on non-2xx, so
// coupling the status code to business outcomes would cause duplicate
// deliveries.
type CallbackServer struct {
	path    string
	handler func(*Envelope)
	limiter RateLimiter

	server   *http.Server
	listener net.Listener
	port     int

	stopOnce sync.Once
	mu       sync.Mutex
}

// NewCallbackServer creates a callback server. handler is invoked once per
// syntactically valid POST body; limiter may be nil to disable rate limiting.
func NewCallbackServer(path string, limiter RateLimiter, handler func(*Envelope)) *CallbackServer {
	return &CallbackServer{
		path:    path,
		handler: handler,
		limiter: limiter,
	}
}

// Start binds the listener and begins serving. port 0 picks a free port;
// the bound port is available from Port() once Start returns.
func (s *CallbackServer) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("webhook server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           http.HandlerFunc(s.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	slog.Info("webhook server listening", "port", s.port, "path", s.path)
	return nil
}

// Port returns the bound port, valid after Start.
func (s *CallbackServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Stop shuts the server down. Safe to call more than once.
func (s *CallbackServer) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		srv := s.server
		s.mu.Unlock()
		if srv != nil {
			err = srv.Shutdown(ctx)
			slog.Info("webhook server stopped", "port", s.port)
		}
	})
	return err
}

func (s *CallbackServer) handle(w http.ResponseWriter, r *http.Request) {
	// Anything but a POST to the registered path gets a 404, wrong method
	// included. The server does not advertise what it accepts.
	if r.URL.Path != s.path || r.Method != http.MethodPost {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if s.limiter != nil {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(host) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		slog.Warn("malformed webhook payload", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Acknowledge before processing. The proxy only needs to know the
	// payload was received; drops and policy rejections are not its concern.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("webhook handler panic", "panic", rec)
			}
		}()
		s.handler(env)
	}()
}
