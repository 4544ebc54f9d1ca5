package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/erg0nix/chorus/internal/backend"
	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
	"github.com/erg0nix/chorus/internal/guard"
	"github.com/erg0nix/chorus/internal/knowledge"
)

type State string

const (
	StateIdle          State = "idle"
	StateInputCheck    State = "input_check"
	StateRejected      State = "rejected"
	StateEnriching     State = "enriching"
	StateGenerating    State = "generating"
	StateStreamBlocked State = "stream_blocked"
	StateComplete      State = "complete"
)

type FragmentKind string

const (
	FragmentText      FragmentKind = "text"
	FragmentRejected  FragmentKind = "rejected"
	FragmentModerated FragmentKind = "moderated"
	FragmentFailed    FragmentKind = "failed"
)

// Fragment is one piece of visible reply text. Text is never empty. A fragment of any kind
// other than FragmentText ends the turn.
type Fragment struct {
	Text string
	Kind FragmentKind
}

func (f Fragment) Terminal() bool {
	return f.Kind != FragmentText
}

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// TurnInfo summarises the last turn for front ends: why it ended and what enrichment found.
type TurnInfo struct {
	Outcome    Outcome
	Reason     guard.Reason
	Err        error
	Enrichment knowledge.Result
	Reply      string
}

const (
	ModeratedMessage = "[The rest of this answer was withheld by the safety filter.]"
	busyMessage      = "This persona is still answering a previous question."
)

var emptyStreamConfig = config.StreamConfig{}

// RejectionMessage is what the person asking sees when their input fails moderation.
func RejectionMessage(reason guard.Reason) string {
	switch reason {
	case guard.ReasonPromptInjection:
		return "I can't follow instructions that try to change how I work. Please ask your question directly."
	case guard.ReasonPIIDetected:
		return "Please don't share personal data such as e-mail addresses, phone or account numbers. Remove it and ask again."
	default:
		return "I can't help with that request."
	}
}

func failureMessage(err error) string {
	return fmt.Sprintf("The model backend failed: %v", err)
}

type turnMode int

const (
	modeStreaming turnMode = iota
	modeWhole
)

// Stream runs one turn and yields the reply as it arrives. The sequence is single-use: ranging
// over it a second time yields nothing. Stopping early closes the backend stream and leaves the
// history unchanged.
func (s *Session) Stream(ctx context.Context, userText string) iter.Seq[Fragment] {
	used := false
	return func(yield func(Fragment) bool) {
		if used {
			return
		}
		used = true
		s.turn(ctx, userText, modeStreaming, yield)
	}
}

func (s *Session) transition(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("session state", "from", s.state, "to", next)
	s.state = next
}

func (s *Session) finish(info TurnInfo) {
	s.last = info
	s.transition(StateIdle)
}

// turn drives one pass through the state machine. In modeWhole, text fragments are collected
// and the complete reply is checked once at the end instead of buffer by buffer.
func (s *Session) turn(ctx context.Context, userText string, mode turnMode, yield func(Fragment) bool) {
	if !s.busy.CompareAndSwap(false, true) {
		yield(Fragment{Text: busyMessage, Kind: FragmentFailed})
		return
	}
	defer s.busy.Store(false)

	s.transition(StateInputCheck)
	if verdict := s.guard.CheckInput(userText); !verdict.OK {
		s.logger.Warn("input rejected", "stage", "input", "reason", verdict.Reason, "detail", verdict.Detail)
		s.transition(StateRejected)
		s.finish(TurnInfo{Outcome: OutcomeRejected, Reason: verdict.Reason})
		yield(Fragment{Text: RejectionMessage(verdict.Reason), Kind: FragmentRejected})
		return
	}

	var enrichment knowledge.Result
	if s.enricher != nil && s.persona.Enrichment {
		s.transition(StateEnriching)
		enrichment = s.enricher.Lookup(ctx, userText, s.persona.ID)
	}

	history, call := s.prepare(userText, enrichment)

	s.record(core.RoleUser, userText)

	s.transition(StateGenerating)
	stream, err := s.backend.ChatStream(ctx, backend.Request{
		Model:     s.model,
		Messages:  call,
		Options:   s.persona.Options,
		KeepAlive: s.keepAlive,
	})
	if err != nil {
		s.fail(err, enrichment, yield)
		return
	}
	defer stream.Close()

	g := generation{session: s, mode: mode, yield: yield}
	outcome, err := g.run(stream)

	switch outcome {
	case OutcomeCompleted:
		s.history = append(history, core.UserMessage(userText), core.AssistantMessage(g.reply.String()))
		s.record(core.RoleAssistant, g.reply.String())
		s.transition(StateComplete)
		s.finish(TurnInfo{Outcome: OutcomeCompleted, Enrichment: enrichment, Reply: g.reply.String()})

	case OutcomeBlocked:
		s.logger.Warn("output blocked", "stage", "output", "reason", g.reason)
		s.record(core.RoleAssistant, ModeratedMessage)
		s.transition(StateStreamBlocked)
		s.finish(TurnInfo{Outcome: OutcomeBlocked, Reason: g.reason, Enrichment: enrichment})
		yield(Fragment{Text: ModeratedMessage, Kind: FragmentModerated})

	case OutcomeFailed:
		s.fail(err, enrichment, yield)

	case OutcomeAbandoned:
		s.logger.Debug("stream abandoned by consumer")
		s.finish(TurnInfo{Outcome: OutcomeAbandoned, Enrichment: enrichment, Reply: g.reply.String()})
	}
}

func (s *Session) fail(err error, enrichment knowledge.Result, yield func(Fragment) bool) {
	message := failureMessage(err)
	s.logger.Error("backend failure", "error", err)
	s.record(core.RoleAssistant, message)
	s.finish(TurnInfo{Outcome: OutcomeFailed, Err: err, Enrichment: enrichment})
	yield(Fragment{Text: message, Kind: FragmentFailed})
}

// prepare returns the history this turn builds on, trimmed if the window is nearly full, and
// the complete message list for the backend: persona prompt, history, enrichment context and
// the new user message.
func (s *Session) prepare(userText string, enrichment knowledge.Result) (history, call []core.Message) {
	history = s.history
	user := core.UserMessage(userText)

	full := append(s.withPrompt(history), user)
	if numCtx, ok := s.persona.Options.ContextSize(); ok && s.policy.NearLimit(full, s.persona.Options) {
		trimmed := s.policy.Trim(full, numCtx)
		if !s.policy.Fits(trimmed, numCtx) {
			s.logger.Warn("context exceeds budget after trimming",
				"estimate", s.policy.Estimate(trimmed), "target", s.policy.Target(numCtx))
		}

		head := 0
		if s.persona.SystemPrompt != "" {
			head = 1
		}
		if dropped := len(full) - len(trimmed); dropped > 0 {
			s.logger.Info("trimmed conversation history", "dropped", dropped)
			history = append([]core.Message(nil), trimmed[head:len(trimmed)-1]...)
		}
	}

	call = s.withPrompt(history)
	call = knowledge.Inject(call, enrichment.Topic, enrichment.Snippet)
	call = append(call, user)

	return append([]core.Message(nil), history...), call
}

// generation consumes one backend stream. Raw chunks are cleaned and buffered until a word
// boundary, then released through output moderation.
type generation struct {
	session *Session
	mode    turnMode
	yield   func(Fragment) bool

	buf    strings.Builder
	reply  strings.Builder
	reason guard.Reason
}

func (g *generation) run(stream backend.Stream) (Outcome, error) {
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return OutcomeFailed, err
		}

		if g.reply.Len() == 0 && g.buf.Len() == 0 && g.session.filter.IsNoise(chunk) {
			continue
		}

		g.buf.WriteString(chunk)
		if !hasBoundary(g.buf.String()) {
			continue
		}

		if outcome, done := g.flush(false); done {
			return outcome, nil
		}
	}

	if outcome, done := g.flush(true); done {
		return outcome, nil
	}

	// The whole reply is checked once more so a match spread across fragments never reaches
	// the history.
	if verdict := g.session.guard.CheckOutput(g.reply.String()); !verdict.OK {
		g.reason = verdict.Reason
		return OutcomeBlocked, nil
	}

	return OutcomeCompleted, nil
}

// flush releases the buffer up to its last boundary, keeping an unfinished word for the next
// flush so moderation always sees whole words. A final flush releases everything. done is true
// when the turn must stop.
func (g *generation) flush(final bool) (Outcome, bool) {
	ready, rest := g.buf.String(), ""
	if !final {
		ready, rest = splitAtBoundary(ready)
	}

	text, held := g.session.filter.Clean(ready)
	g.buf.Reset()
	if final {
		text += held
	} else {
		g.buf.WriteString(held + rest)
	}

	if text == "" {
		return "", false
	}

	if g.mode == modeWhole {
		g.reply.WriteString(text)
		return "", false
	}

	result := g.session.guard.ProcessOutput(text)
	if result.Blocked {
		g.reason = result.Reason
		return OutcomeBlocked, true
	}
	if result.Text == "" {
		return "", false
	}

	g.reply.WriteString(result.Text)
	if !g.yield(Fragment{Text: result.Text, Kind: FragmentText}) {
		return OutcomeAbandoned, true
	}
	return "", false
}
