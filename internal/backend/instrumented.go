package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erg0nix/chorus/internal/core"
)

// Instrumented validates requests and records them in the debug request log before handing
// them to the wrapped backend.
type Instrumented struct {
	Backend       Backend
	Requests      *RequestLogger
	ValidateRoles bool
}

func (b *Instrumented) ChatStream(ctx context.Context, req Request) (Stream, error) {
	requestID := core.NewRequestID()

	if b.ValidateRoles {
		if err := ValidateMessages(req.Messages); err != nil {
			err = fmt.Errorf("invalid request: %w", err)
			b.Requests.LogError(requestID, err, req.Messages)
			return nil, err
		}
	}

	b.Requests.LogRequest(requestID, req)

	stream, err := b.Backend.ChatStream(ctx, req)
	if err != nil {
		b.Requests.LogError(requestID, err, req.Messages)
		return nil, err
	}

	return &loggedStream{
		Stream:    stream,
		requestID: requestID,
		requests:  b.Requests,
		messages:  req.Messages,
		start:     time.Now(),
	}, nil
}

type loggedStream struct {
	Stream
	requestID core.RequestID
	requests  *RequestLogger
	messages  []core.Message
	start     time.Time
	reply     strings.Builder
	finished  bool
}

func (s *loggedStream) Next() (string, error) {
	text, err := s.Stream.Next()
	if s.finished {
		return text, err
	}

	switch {
	case err == nil:
		s.reply.WriteString(text)
	case errors.Is(err, io.EOF):
		s.finished = true
		s.requests.LogResponse(s.requestID, s.reply.String(), time.Since(s.start))
	default:
		s.finished = true
		s.requests.LogError(s.requestID, err, s.messages)
	}

	return text, err
}
