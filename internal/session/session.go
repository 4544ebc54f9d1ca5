// Package session runs conversation turns for one persona: input moderation, optional
// knowledge enrichment, context budgeting, the streamed backend call, output moderation and the
// audit transcript.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/erg0nix/chorus/internal/audit"
	"github.com/erg0nix/chorus/internal/backend"
	"github.com/erg0nix/chorus/internal/budget"
	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
	"github.com/erg0nix/chorus/internal/core"
	"github.com/erg0nix/chorus/internal/guard"
	"github.com/erg0nix/chorus/internal/knowledge"
)

var ErrUnknownPersona = errors.New("unknown persona")

// Options are the collaborators shared by every session of a process.
type Options struct {
	Backend   backend.Backend
	Model     string
	KeepAlive time.Duration
	Guard     *guard.Guard
	Enricher  *knowledge.Enricher
	Policy    budget.Policy
	Filter    *Filter
	AuditDir  string
	Logger    *slog.Logger
}

// Session owns one persona's conversation. Its history is only changed by its own turns, and
// only one turn may run at a time.
type Session struct {
	id       core.SessionID
	persona  personaConfig.PersonaConfig
	model    string
	backend  backend.Backend
	guard    *guard.Guard
	enricher *knowledge.Enricher
	policy   budget.Policy
	filter   *Filter
	audit    *audit.Log
	logger   *slog.Logger

	keepAlive time.Duration
	history   []core.Message
	state     State
	last      TurnInfo
	busy      atomic.Bool
}

func New(p personaConfig.PersonaConfig, opts Options) *Session {
	id := core.NewSessionID()

	model := p.Model
	if model == "" {
		model = opts.Model
	}

	policy := opts.Policy
	if policy == (budget.Policy{}) {
		policy = budget.DefaultPolicy()
	}

	filter := opts.Filter
	if filter == nil {
		filter = NewFilter(emptyStreamConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:        id,
		persona:   p,
		model:     model,
		backend:   opts.Backend,
		guard:     opts.Guard,
		enricher:  opts.Enricher,
		policy:    policy,
		filter:    filter,
		logger:    logger.With("persona", p.ID, "session_id", id),
		keepAlive: opts.KeepAlive,
		state:     StateIdle,
	}

	if opts.AuditDir != "" {
		s.audit = audit.Open(opts.AuditDir, p.ID, id, model, p.Options)
	}

	return s
}

func (s *Session) ID() core.SessionID { return s.id }

func (s *Session) PersonaID() string { return s.persona.ID }

func (s *Session) Persona() personaConfig.PersonaConfig { return s.persona }

func (s *Session) Model() string { return s.model }

func (s *Session) State() State { return s.state }

// LastTurn describes the most recent finished turn.
func (s *Session) LastTurn() TurnInfo { return s.last }

func (s *Session) AuditPath() string { return s.audit.Path() }

// History returns a copy of the stored conversation, without the persona prompt.
func (s *Session) History() []core.Message {
	return append([]core.Message(nil), s.history...)
}

// Restore replaces the stored conversation, e.g. with a saved one.
func (s *Session) Restore(messages []core.Message) error {
	for i, m := range messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	s.history = append([]core.Message(nil), messages...)
	return nil
}

func (s *Session) Reset() {
	s.history = nil
	s.last = TurnInfo{}
}

// Snapshot reports how full the persona's context window is with the stored history.
func (s *Session) Snapshot() core.ContextSnapshot {
	messages := s.withPrompt(s.history)
	numCtx, _ := s.persona.Options.ContextSize()

	snapshot := core.ContextSnapshot{
		PersonaID:       s.persona.ID,
		ContextSize:     numCtx,
		EstimatedTokens: s.policy.Estimate(messages),
		Messages:        len(s.history),
		NearLimit:       s.policy.NearLimit(messages, s.persona.Options),
	}
	if numCtx > 0 {
		snapshot.Target = s.policy.Target(numCtx)
	}
	return snapshot
}

func (s *Session) Close() error {
	return s.audit.Close()
}

func (s *Session) withPrompt(messages []core.Message) []core.Message {
	if s.persona.SystemPrompt == "" {
		return append([]core.Message(nil), messages...)
	}
	out := make([]core.Message, 0, len(messages)+1)
	out = append(out, core.SystemMessage(s.persona.SystemPrompt))
	return append(out, messages...)
}

func (s *Session) record(role core.Role, content string) {
	if err := s.audit.Record(role, content); err != nil {
		s.logger.Warn("audit write failed", "role", role, "error", err)
	}
}
