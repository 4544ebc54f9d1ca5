package session

import (
	"context"
	"strings"
)

const EmptyQuestionMessage = "Please ask a question."

// Reply is the complete answer to a one-shot question. Hint and Topic come from knowledge
// enrichment and are meant for the person asking, not the model.
type Reply struct {
	Text  string       `json:"answer"`
	Kind  FragmentKind `json:"kind"`
	Hint  string       `json:"hint,omitempty"`
	Topic string       `json:"topic,omitempty"`
}

// OneShot runs a turn to completion and returns the whole reply. The reply is moderated once
// as a whole rather than buffer by buffer, since nothing has been shown yet. A blank question
// is answered without contacting the backend.
func (s *Session) OneShot(ctx context.Context, userText string) Reply {
	if strings.TrimSpace(userText) == "" {
		return Reply{Text: EmptyQuestionMessage, Kind: FragmentText}
	}

	var terminal *Fragment
	s.turn(ctx, userText, modeWhole, func(f Fragment) bool {
		if f.Terminal() {
			terminal = &f
			return false
		}
		return true
	})

	reply := Reply{
		Kind:  FragmentText,
		Hint:  s.last.Enrichment.Hint,
		Topic: s.last.Enrichment.Topic,
	}
	if terminal != nil {
		reply.Text = terminal.Text
		reply.Kind = terminal.Kind
		return reply
	}

	reply.Text = s.last.Reply
	return reply
}
