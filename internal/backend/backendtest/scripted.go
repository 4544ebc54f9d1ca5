// Package backendtest provides a scripted backend for exercising the conversation pipeline
// without a model server.
package backendtest

import (
	"context"
	"io"
	"sync"

	"github.com/erg0nix/chorus/internal/backend"
)

// Reply scripts one backend call: Chunks are streamed in order, then Err is returned instead
// of io.EOF when set. OpenErr fails the call before any stream exists.
type Reply struct {
	Chunks  []string
	Err     error
	OpenErr error
}

// Backend replays scripted replies in call order and repeats the last one once the script
// runs out. It records every request and counts streams that were never closed.
type Backend struct {
	mu       sync.Mutex
	replies  []Reply
	requests []backend.Request
	open     int
}

func New(replies ...Reply) *Backend {
	return &Backend{replies: replies}
}

func Chunks(chunks ...string) Reply {
	return Reply{Chunks: chunks}
}

func (b *Backend) ChatStream(_ context.Context, req backend.Request) (backend.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, req)

	var reply Reply
	switch {
	case len(b.replies) == 0:
	case len(b.requests) <= len(b.replies):
		reply = b.replies[len(b.requests)-1]
	default:
		reply = b.replies[len(b.replies)-1]
	}

	if reply.OpenErr != nil {
		return nil, reply.OpenErr
	}

	b.open++
	return &stream{backend: b, reply: reply}, nil
}

func (b *Backend) Requests() []backend.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Request(nil), b.requests...)
}

func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Open is the number of streams handed out and not yet closed.
func (b *Backend) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

type stream struct {
	backend *Backend
	reply   Reply
	pos     int
	closed  bool
}

func (s *stream) Next() (string, error) {
	if s.pos < len(s.reply.Chunks) {
		s.pos++
		return s.reply.Chunks[s.pos-1], nil
	}
	if s.reply.Err != nil {
		return "", s.reply.Err
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.backend.mu.Lock()
	s.backend.open--
	s.backend.mu.Unlock()
	return nil
}
