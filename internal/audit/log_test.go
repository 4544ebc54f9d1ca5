package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/chorus/internal/core"
)

func TestLogRecord(t *testing.T) {
	dir := t.TempDir()
	log := Open(dir, "sage", core.SessionID("sess_1"), "llama3.1:8b", core.Options{Temperature: core.Float(0.7)})
	log.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 7200)) }
	defer log.Close()

	if _, err := os.Stat(log.Path()); !os.IsNotExist(err) {
		t.Fatalf("audit file must not exist before the first record, stat err: %v", err)
	}

	require.NoError(t, log.Record(core.RoleUser, "What is virtue?"))
	require.NoError(t, log.Record(core.RoleAssistant, "A habit of the soul."))

	assert.Equal(t, filepath.Join(dir, "sage_sess_1.jsonl"), log.Path())

	entries, err := ReadFile(log.Path())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "sage", first.PersonaID)
	assert.Equal(t, "llama3.1:8b", first.ModelID)
	assert.Equal(t, core.RoleUser, first.Role)
	assert.Equal(t, "What is virtue?", first.Content)
	assert.Equal(t, 0.7, first.GenerationOptions["temperature"])
	assert.True(t, first.Timestamp.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)), "timestamps are stored in UTC")

	assert.Equal(t, core.RoleAssistant, entries[1].Role)
}

func TestLogFieldNames(t *testing.T) {
	dir := t.TempDir()
	log := Open(dir, "poet", core.SessionID("sess_2"), "m", core.Options{})
	require.NoError(t, log.Record(core.RoleUser, "hi"))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)

	for _, field := range []string{`"timestamp"`, `"model_id"`, `"persona_id"`, `"generation_options"`, `"role"`, `"content"`} {
		assert.Contains(t, string(data), field)
	}
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestLogAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	id := core.SessionID("sess_3")

	first := Open(dir, "sage", id, "m", core.Options{})
	require.NoError(t, first.Record(core.RoleUser, "one"))
	require.NoError(t, first.Close())

	second := Open(dir, "sage", id, "m", core.Options{})
	require.NoError(t, second.Record(core.RoleUser, "two"))
	require.NoError(t, second.Close())

	entries, err := ReadFile(first.Path())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Content)
	assert.Equal(t, "two", entries[1].Content)
}

func TestLogConcurrentRecords(t *testing.T) {
	dir := t.TempDir()
	log := Open(dir, "sage", core.SessionID("sess_4"), "m", core.Options{})
	defer log.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, log.Record(core.RoleUser, fmt.Sprintf("message %d with some padding text", i)))
		}(i)
	}
	wg.Wait()

	entries, err := ReadFile(log.Path())
	require.NoError(t, err, "every line must still be valid JSON")
	assert.Len(t, entries, 20)
}

func TestNilLog(t *testing.T) {
	var log *Log
	assert.NoError(t, log.Record(core.RoleUser, "ignored"))
	assert.NoError(t, log.Close())
	assert.Empty(t, log.Path())
}
