package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
)

const maxErrorBody = 4096

// Ollama streams from the native /api/chat endpoint, which answers with one JSON object per
// line.
type Ollama struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOllama(cfg config.BackendConfig) *Ollama {
	return &Ollama{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		client:   httpClient(cfg),
	}
}

type ollamaMessage struct {
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

type ollamaRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Options   map[string]any  `json:"options,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (o *Ollama) ChatStream(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	payload := ollamaRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(req.Messages)),
		Stream:   true,
		Options:  req.Options.Map(),
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	if req.KeepAlive > 0 {
		payload.KeepAlive = req.KeepAlive.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &ollamaStream{body: resp.Body, scanner: scanner}, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
	closed  bool
}

func (s *ollamaStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("malformed stream chunk: %w", err)
		}

		if chunk.Error != "" {
			return "", errors.New(chunk.Error)
		}

		if chunk.Done {
			s.done = true
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			return "", io.EOF
		}

		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	return "", fmt.Errorf("stream ended before completion: %w", io.ErrUnexpectedEOF)
}

func (s *ollamaStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
