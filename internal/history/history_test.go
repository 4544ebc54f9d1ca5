package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erg0nix/chorus/internal/core"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats", "sage.yaml")
	messages := []core.Message{
		core.UserMessage("What is patience?"),
		core.AssistantMessage("Waiting,\nwithout complaint."),
	}

	require.NoError(t, Save(path, "sage", "llama3", messages))

	f, ok, err := Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sage", f.Persona)
	assert.Equal(t, "llama3", f.Model)
	assert.Equal(t, messages, f.Messages)
	assert.False(t, f.SavedAt.IsZero())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadRejectsInvalidRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := "persona: sage\nmessages:\n  - role: tool\n    content: ls\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, _, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("messages: [\n"), 0o644))

	_, _, err := Load(path)
	assert.Error(t, err)
}
