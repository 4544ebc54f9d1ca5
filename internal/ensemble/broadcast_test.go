package ensemble

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/chorus/internal/backend"
	"github.com/erg0nix/chorus/internal/backend/backendtest"
	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
	"github.com/erg0nix/chorus/internal/persona"
	"github.com/erg0nix/chorus/internal/session"
)

func catalog() *persona.Catalog {
	return persona.NewCatalog(
		personaConfig.PersonaConfig{ID: "sage", SystemPrompt: "You are a sage."},
		personaConfig.PersonaConfig{ID: "poet", SystemPrompt: "Answer in verse."},
		personaConfig.PersonaConfig{ID: "critic", SystemPrompt: "Find the flaw."},
	)
}

func newBroadcaster(t *testing.T, b *backendtest.Backend) *Broadcaster {
	t.Helper()
	m := session.NewManager(catalog(), session.Options{Backend: b, Model: "test-model"})
	t.Cleanup(func() { _ = m.Close() })
	return &Broadcaster{Sessions: m}
}

func personaOf(req backend.Request) string {
	return req.Messages[0].Content
}

func TestBroadcastKeepsRequestOrder(t *testing.T) {
	b := backendtest.New(
		backendtest.Chunks("first ", "answer"),
		backendtest.Chunks("second answer"),
	)
	bc := newBroadcaster(t, b)

	results, err := bc.Broadcast(context.Background(), "Why?", []string{"poet", "sage"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []Result{
		{PersonaID: "poet", Reply: "first answer", Kind: session.FragmentText},
		{PersonaID: "sage", Reply: "second answer", Kind: session.FragmentText},
	}, results)

	requests := b.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "Answer in verse.", personaOf(requests[0]))
	assert.Equal(t, "You are a sage.", personaOf(requests[1]))
}

func TestBroadcastDefaultsToWholeCatalog(t *testing.T) {
	bc := newBroadcaster(t, backendtest.New(backendtest.Chunks("ok")))

	results, err := bc.Broadcast(context.Background(), "Hello", nil, nil)
	require.NoError(t, err)

	var ids []string
	for _, r := range results {
		ids = append(ids, r.PersonaID)
	}
	assert.Equal(t, []string{"sage", "poet", "critic"}, ids)
}

func TestBroadcastUnknownPersonaRunsNothing(t *testing.T) {
	b := backendtest.New(backendtest.Chunks("ok"))
	bc := newBroadcaster(t, b)

	_, err := bc.Broadcast(context.Background(), "Hello", []string{"sage", "jester"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrUnknownPersona)
	assert.Zero(t, b.Calls())
}

func TestBroadcastContinuesPastFailure(t *testing.T) {
	b := backendtest.New(
		backendtest.Chunks("calm words"),
		backendtest.Reply{OpenErr: errors.New("connection refused")},
		backendtest.Chunks("sharp words"),
	)
	bc := newBroadcaster(t, b)

	results, err := bc.Broadcast(context.Background(), "Judge this", nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "calm words", results[0].Reply)
	assert.Equal(t, session.FragmentFailed, results[1].Kind)
	assert.Contains(t, results[1].Reply, "connection refused")
	assert.Equal(t, "sharp words", results[2].Reply)
	assert.Zero(t, b.Open())
}

func TestBroadcastReportsFragments(t *testing.T) {
	bc := newBroadcaster(t, backendtest.New(backendtest.Chunks("one ", "two")))

	var seen []string
	_, err := bc.Broadcast(context.Background(), "Count", []string{"sage", "critic"}, func(id string, f session.Fragment) {
		seen = append(seen, id+":"+strings.TrimSpace(f.Text))
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"sage:one", "sage:two", "critic:one", "critic:two"}, seen)
}

func TestBroadcastUsesLongLivedSessions(t *testing.T) {
	b := backendtest.New(backendtest.Chunks("ok"))
	bc := newBroadcaster(t, b)

	for range 2 {
		_, err := bc.Broadcast(context.Background(), "Again", []string{"sage"}, nil)
		require.NoError(t, err)
	}

	s, err := bc.Sessions.Get("sage")
	require.NoError(t, err)
	assert.Len(t, s.History(), 4)
}
