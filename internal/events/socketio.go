package events

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketIOConfig configures a socket.io publisher.
type SocketIOConfig struct {
	URL       string
	Namespace string
	// Event is the name events are emitted under. Defaults to "llmgrid".
	Event              string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// SocketIO emits every event over one socket.io connection.
type SocketIO struct {
	io    *socket.Socket
	event string
}

// DialSocketIO connects and waits for the handshake.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("socket.io URL %q needs a scheme and host", cfg.URL)
	}
	if cfg.Event == "" {
		cfg.Event = "llmgrid"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Event publisher connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		logger.Info("📡 Publishing run events over socket.io", "event", cfg.Event)
		return &SocketIO{io: io, event: cfg.Event}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(cfg.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.ConnectTimeout)
	}
}

func (s *SocketIO) Publish(ctx context.Context, e Event) {
	if !s.io.Connected() {
		ctxlog.FromContext(ctx).Warn("Event publisher is disconnected, dropping event.", "type", e.Type)
		return
	}
	if err := s.io.Emit(s.event, e.Payload()); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to emit event.", "type", e.Type, "error", err)
	}
}

func (s *SocketIO) Close() error {
	s.io.Disconnect()
	return nil
}
