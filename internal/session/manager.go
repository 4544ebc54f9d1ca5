package session

import (
	"errors"
	"fmt"
	"sync"

	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
	"github.com/erg0nix/chorus/internal/persona"
)

// Manager hands out one long-lived session per persona, created on first use.
type Manager struct {
	catalog *persona.Catalog
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(catalog *persona.Catalog, opts Options) *Manager {
	return &Manager{catalog: catalog, opts: opts, sessions: make(map[string]*Session)}
}

func (m *Manager) Catalog() *persona.Catalog {
	return m.catalog
}

func (m *Manager) lookup(personaID string) (personaConfig.PersonaConfig, error) {
	p, err := m.catalog.Get(personaID)
	if err != nil {
		return personaConfig.PersonaConfig{}, fmt.Errorf("%w: %w", ErrUnknownPersona, err)
	}
	return p, nil
}

// Get returns the persona's session, creating it on first use.
func (m *Manager) Get(personaID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[personaID]; ok {
		return s, nil
	}

	p, err := m.lookup(personaID)
	if err != nil {
		return nil, err
	}

	s := New(p, m.opts)
	m.sessions[personaID] = s
	return s, nil
}

// NewSession returns a fresh session the manager does not keep, for callers that own a session
// per request or connection. The caller closes it.
func (m *Manager) NewSession(personaID string) (*Session, error) {
	p, err := m.lookup(personaID)
	if err != nil {
		return nil, err
	}
	return New(p, m.opts), nil
}

// Reset forgets a persona's conversation. The next Get starts a new session with its own
// transcript.
func (m *Manager) Reset(personaID string) error {
	if _, err := m.lookup(personaID); err != nil {
		return err
	}

	m.mu.Lock()
	s, ok := m.sessions[personaID]
	delete(m.sessions, personaID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, s := range m.sessions {
		errs = append(errs, s.Close())
		delete(m.sessions, id)
	}
	return errors.Join(errs...)
}
