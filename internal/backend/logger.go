package backend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/erg0nix/chorus/internal/core"
)

// RequestLogger appends backend requests, replies and failures to a dated JSONL file for
// debugging. A nil *RequestLogger logs nothing.
type RequestLogger struct {
	logDir       string
	logRequests  bool
	logResponses bool
	logger       *slog.Logger
	mu           sync.Mutex
}

type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	RequestID string         `json:"request_id"`
	Type      string         `json:"type"`
	Model     string         `json:"model,omitempty"`
	Messages  []core.Message `json:"messages,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Response  string         `json:"response,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func NewRequestLogger(logDir string, logRequests, logResponses bool, logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestLogger{
		logDir:       logDir,
		logRequests:  logRequests,
		logResponses: logResponses,
		logger:       logger,
	}
}

func (l *RequestLogger) LogRequest(requestID core.RequestID, req Request) {
	if l == nil || !l.logRequests {
		return
	}

	l.writeLog(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: string(requestID),
		Type:      "request",
		Model:     req.Model,
		Messages:  req.Messages,
		Options:   req.Options.Map(),
	})
	l.logger.Debug("backend request", "request_id", requestID, "model", req.Model, "message_count", len(req.Messages))
}

func (l *RequestLogger) LogResponse(requestID core.RequestID, reply string, duration time.Duration) {
	if l == nil || !l.logResponses {
		return
	}

	l.writeLog(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: string(requestID),
		Type:      "response",
		Response:  reply,
		Duration:  duration.String(),
	})
}

func (l *RequestLogger) LogError(requestID core.RequestID, err error, messages []core.Message) {
	if l == nil {
		return
	}

	l.writeLog(LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: string(requestID),
		Type:      "error",
		Error:     err.Error(),
		Messages:  messages,
	})

	msgSummary := make([]string, 0, min(5, len(messages)))
	for _, msg := range messages[max(0, len(messages)-5):] {
		content := []rune(msg.Content)
		if len(content) > 50 {
			content = append(content[:50], []rune("...")...)
		}
		msgSummary = append(msgSummary, fmt.Sprintf("[%s] %s", msg.Role, string(content)))
	}

	l.logger.Error("backend request failed",
		"request_id", requestID,
		"error", err,
		"recent_messages", msgSummary,
	)
}

func (l *RequestLogger) writeLog(entry LogEntry) {
	if l.logDir == "" {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	_ = os.MkdirAll(l.logDir, 0o755)

	logFile := filepath.Join(l.logDir, fmt.Sprintf("backend_%s.jsonl", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(data)
}
