package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erg0nix/chorus/internal/config"
)

var ErrNotFound = errors.New("knowledge: topic not found")

// StatusError is any non-200, non-404 answer from the snippet service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("knowledge: snippet service returned %d", e.Code)
}

// Snippet is the snippet service's answer for one topic.
type Snippet struct {
	Text     string `json:"text"`
	WikiHint string `json:"wiki_hint"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
}

// SnippetSource fetches a snippet for topic on behalf of persona.
type SnippetSource interface {
	Fetch(ctx context.Context, topic, persona string) (Snippet, error)
}

// Client calls GET <endpoint>/<topic>?limit=&online=&persona=.
type Client struct {
	endpoint string
	limit    int
	online   bool
	http     *http.Client
}

const maxSnippetBody = 1 << 20

func NewClient(cfg config.KnowledgeConfig) *Client {
	connectTimeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 3 * time.Second
	}

	readTimeout := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.ResponseHeaderTimeout = readTimeout

	return &Client{
		endpoint: cfg.Endpoint,
		limit:    cfg.Limit,
		online:   cfg.Online,
		http:     &http.Client{Transport: transport, Timeout: connectTimeout + readTimeout},
	}
}

func (c *Client) Fetch(ctx context.Context, topic, persona string) (Snippet, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.limit))
	query.Set("online", boolFlag(c.online))
	query.Set("persona", persona)

	endpointURL := c.endpoint + "/" + url.PathEscape(topic) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return Snippet{}, fmt.Errorf("knowledge: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "chorus/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return Snippet{}, fmt.Errorf("knowledge: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Snippet{}, ErrNotFound
	default:
		return Snippet{}, &StatusError{Code: resp.StatusCode}
	}

	var snippet Snippet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSnippetBody)).Decode(&snippet); err != nil {
		return Snippet{}, fmt.Errorf("knowledge: decode snippet: %w", err)
	}

	return snippet, nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
