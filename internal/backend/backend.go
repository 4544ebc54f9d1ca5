// Package backend talks to the language-model inference service. Every backend streams: a
// request returns a Stream of text deltas that the caller must Close.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
)

type Request struct {
	Model     string
	Messages  []core.Message
	Options   core.Options
	KeepAlive time.Duration
}

// Stream yields incremental reply text. Next returns io.EOF once the reply is complete; any
// other error means the reply is broken. Close releases the connection and is safe to call at
// any point, including before the stream is drained.
type Stream interface {
	Next() (string, error)
	Close() error
}

type Backend interface {
	ChatStream(ctx context.Context, req Request) (Stream, error)
}

// StatusError is a non-success HTTP answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// FromConfig builds the configured backend wrapped with role validation and the debug request
// log.
func FromConfig(cfg config.BackendConfig, debug config.DebugConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Backend
	switch cfg.Kind {
	case config.BackendOllama:
		inner = NewOllama(cfg)
	case config.BackendOpenAI:
		inner = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}

	return &Instrumented{
		Backend:       inner,
		Requests:      NewRequestLogger(debug.LogDirectory, debug.LogRequests, debug.LogResponses, logger),
		ValidateRoles: debug.ValidateRoles,
	}, nil
}

// httpClient bounds connecting and waiting for response headers but not reading the body, so a
// slow generation is never cut off mid-stream.
func httpClient(cfg config.BackendConfig) *http.Client {
	connectTimeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	readTimeout := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = 300 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = readTimeout

	return &http.Client{Transport: transport}
}
