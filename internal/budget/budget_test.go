package budget

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/chorus/internal/core"
)

func TestEstimate(t *testing.T) {
	e := DefaultEstimator()

	tests := []struct {
		name     string
		messages []core.Message
		want     int
	}{
		{name: "empty", messages: nil, want: 0},
		{name: "only blank content", messages: []core.Message{core.UserMessage("  \n\t ")}, want: 0},
		// 13 chars / 3.25 = 4 tokens, +3 request, +4 message
		{name: "single message", messages: []core.Message{core.UserMessage("hello, world!")}, want: 11},
		// whitespace collapses to "a b" (3 chars): ceil(3/3.25)=1
		{name: "whitespace normalised", messages: []core.Message{core.UserMessage("  a \n\n  b  ")}, want: 8},
		{name: "blank messages skipped", messages: []core.Message{
			core.SystemMessage(""),
			core.UserMessage("hello, world!"),
			{Role: core.RoleAssistant},
		}, want: 11},
		// 26 chars: ceil(8) + 3 + 8
		{name: "two messages", messages: []core.Message{
			core.UserMessage("hello, world!"),
			core.AssistantMessage("hello, world!"),
		}, want: 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Estimate(tt.messages))
		})
	}
}

func TestEstimateMonotonic(t *testing.T) {
	e := DefaultEstimator()
	prev := 0

	for i := 0; i < 200; i++ {
		messages := []core.Message{core.UserMessage(strings.Repeat("x", i))}
		got := e.Estimate(messages)
		require.GreaterOrEqual(t, got, 0)
		require.GreaterOrEqual(t, got, prev, "estimate shrank at length %d", i)
		prev = got
	}
}

func TestEstimateCountsRunes(t *testing.T) {
	e := DefaultEstimator()
	assert.Equal(t,
		e.Estimate([]core.Message{core.UserMessage("abcd")}),
		e.Estimate([]core.Message{core.UserMessage("äöüß")}))
}

func TestTarget(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 64, p.Target(128), "fixed headroom dominates small windows")
	assert.Equal(t, 3277, p.Target(4096), "ratio headroom dominates large windows")
	assert.Equal(t, 0, p.Target(32), "target clamps at zero")
	assert.Equal(t, 0, p.Target(0))
}

func TestNearLimit(t *testing.T) {
	p := DefaultPolicy()
	history := []core.Message{core.UserMessage(strings.Repeat("word ", 40))}
	estimate := p.Estimate(history)

	assert.False(t, p.NearLimit(history, core.Options{}), "no num_ctx means no limit")
	assert.True(t, p.NearLimit(history, core.Options{NumCtx: core.Int(estimate)}))
	assert.False(t, p.NearLimit(history, core.Options{NumCtx: core.Int(estimate * 10)}))
	assert.True(t, p.NearLimit(history, core.Options{Extra: map[string]any{"num_ctx": float64(estimate)}}))
}

func longHistory() []core.Message {
	messages := []core.Message{core.SystemMessage("You are helpful.")}
	for i := 0; i < 10; i++ {
		messages = append(messages,
			core.UserMessage(strings.Repeat("Tell me more about the old days. ", 3)),
			core.AssistantMessage(strings.Repeat("Long ago there were many stories to tell. ", 3)),
		)
	}
	return append(messages, core.UserMessage("What now?"), core.AssistantMessage("Not sure."))
}

func TestTrimScenario(t *testing.T) {
	p := DefaultPolicy()
	messages := longHistory()
	original := append([]core.Message(nil), messages...)

	require.Greater(t, p.Estimate(messages), p.Target(128))

	trimmed := p.Trim(messages, 128)

	assert.LessOrEqual(t, p.Estimate(trimmed), p.Target(128))
	assert.Less(t, len(trimmed), len(messages))
	assert.Equal(t, messages[0], trimmed[0], "system head preserved")
	if diff := cmp.Diff(messages[len(messages)-2:], trimmed[len(trimmed)-2:]); diff != "" {
		t.Errorf("tail changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original, messages); diff != "" {
		t.Errorf("input was modified (-want +got):\n%s", diff)
	}
}

func TestTrimIdempotent(t *testing.T) {
	p := DefaultPolicy()

	once := p.Trim(longHistory(), 128)
	twice := p.Trim(once, 128)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second trim changed result (-first +second):\n%s", diff)
	}
}

func TestTrimWithinTargetUnchanged(t *testing.T) {
	p := DefaultPolicy()
	messages := []core.Message{core.SystemMessage("sys"), core.UserMessage("hi")}

	assert.Equal(t, messages, p.Trim(messages, 4096))
}

func TestTrimNeverDropsHeadOrTail(t *testing.T) {
	p := DefaultPolicy()
	big := strings.Repeat("enormous ", 200)

	for n := 0; n <= 8; n++ {
		messages := []core.Message{core.SystemMessage(big)}
		for i := 0; i < n; i++ {
			messages = append(messages, core.UserMessage(big))
		}

		trimmed := p.Trim(messages, 128)

		require.NotEmpty(t, trimmed)
		assert.Equal(t, messages[0], trimmed[0])

		tail := min(p.TailKeep, len(messages)-1)
		assert.Len(t, trimmed, 1+tail, "n=%d: only head and tail can remain", n)
		assert.False(t, p.Fits(trimmed, 128), "target cannot be met with oversized head")
	}
}

func TestTrimWithoutSystemHead(t *testing.T) {
	p := DefaultPolicy()
	messages := longHistory()[1:]

	trimmed := p.Trim(messages, 128)

	assert.LessOrEqual(t, p.Estimate(trimmed), p.Target(128))
	assert.Equal(t, messages[len(messages)-1], trimmed[len(trimmed)-1])
	assert.NotEqual(t, core.RoleSystem, trimmed[0].Role)
}
