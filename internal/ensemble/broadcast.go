// Package ensemble asks the same question of several personas in turn.
package ensemble

import (
	"context"
	"strings"

	"github.com/erg0nix/chorus/internal/session"
)

type Result struct {
	PersonaID string               `json:"persona_id"`
	Reply     string               `json:"reply"`
	Kind      session.FragmentKind `json:"kind"`
}

// FragmentFunc observes fragments as they stream in, tagged with the persona producing them.
type FragmentFunc func(personaID string, fragment session.Fragment)

type Broadcaster struct {
	Sessions *session.Manager
}

// Broadcast runs question through each persona's session, one persona at a time and in the
// given order. An empty personaIDs means every persona in catalog order. All ids are resolved
// before any persona runs, so an unknown id fails the whole call. A persona whose turn fails
// still gets a result, carrying the failure text as its reply.
func (b *Broadcaster) Broadcast(ctx context.Context, question string, personaIDs []string, onFragment FragmentFunc) ([]Result, error) {
	if len(personaIDs) == 0 {
		personaIDs = b.Sessions.Catalog().IDs()
	}

	sessions := make([]*session.Session, 0, len(personaIDs))
	for _, id := range personaIDs {
		s, err := b.Sessions.Get(id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	results := make([]Result, 0, len(sessions))
	for _, s := range sessions {
		var reply strings.Builder
		kind := session.FragmentText

		for fragment := range s.Stream(ctx, question) {
			if onFragment != nil {
				onFragment(s.PersonaID(), fragment)
			}
			if fragment.Terminal() {
				reply.Reset()
				kind = fragment.Kind
			}
			reply.WriteString(fragment.Text)
		}

		results = append(results, Result{PersonaID: s.PersonaID(), Reply: reply.String(), Kind: kind})
	}

	return results, nil
}
