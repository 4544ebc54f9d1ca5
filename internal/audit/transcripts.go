package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/erg0nix/chorus/internal/core"
)

// Info describes one session transcript on disk.
type Info struct {
	PersonaID  string
	SessionID  core.SessionID
	Path       string
	Entries    int
	FileSize   int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Transcripts browses the audit directory.
type Transcripts struct {
	Dir string
}

// List returns all transcripts sorted by most recently modified first.
func (t *Transcripts) List() ([]Info, error) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	var result []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		personaID, sessionID, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}

		info, err := t.Get(personaID, sessionID)
		if err != nil {
			continue
		}
		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ModifiedAt.After(result[j].ModifiedAt)
	})

	return result, nil
}

// Get returns metadata for the transcript of one session.
func (t *Transcripts) Get(personaID string, sessionID core.SessionID) (Info, error) {
	path := filepath.Join(t.Dir, fmt.Sprintf("%s_%s.jsonl", personaID, sessionID))

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("transcript not found: %s/%s", personaID, sessionID)
		}
		return Info{}, fmt.Errorf("stat transcript: %w", err)
	}

	return Info{
		PersonaID:  personaID,
		SessionID:  sessionID,
		Path:       path,
		Entries:    countLines(path),
		FileSize:   stat.Size(),
		CreatedAt:  parseSessionTimestamp(sessionID),
		ModifiedAt: stat.ModTime(),
	}, nil
}

// Delete removes one transcript. Only operators prune transcripts; sessions never do.
func (t *Transcripts) Delete(personaID string, sessionID core.SessionID) error {
	info, err := t.Get(personaID, sessionID)
	if err != nil {
		return err
	}

	if err := os.Remove(info.Path); err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return nil
}

// parseFileName splits "<persona>_sess_<stamp>_<seed>.jsonl".
func parseFileName(name string) (string, core.SessionID, bool) {
	base := strings.TrimSuffix(name, ".jsonl")

	i := strings.Index(base, "_sess_")
	if i <= 0 {
		return "", "", false
	}
	return base[:i], core.SessionID(base[i+1:]), true
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		for i := range n {
			if buf[i] == '\n' {
				count++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return count
		}
	}
	return count
}

func parseSessionTimestamp(id core.SessionID) time.Time {
	s, ok := strings.CutPrefix(string(id), "sess_")
	if !ok {
		return time.Time{}
	}

	stamp, _, _ := strings.Cut(s, "_")
	t, err := time.Parse("20060102T150405.000000000", stamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
