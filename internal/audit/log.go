// Package audit keeps the append-only transcript of each session: one JSONL file per session,
// one record per user message and per finished assistant reply.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/erg0nix/chorus/internal/core"
)

type Entry struct {
	Timestamp         time.Time      `json:"timestamp"`
	ModelID           string         `json:"model_id"`
	PersonaID         string         `json:"persona_id"`
	GenerationOptions map[string]any `json:"generation_options"`
	Role              core.Role      `json:"role"`
	Content           string         `json:"content"`
}

// Log appends entries for one session. The file is created on the first record and stays open
// until Close; every record is written with a single append so concurrent writers, even in
// other processes, never interleave within a line. A nil *Log records nothing.
type Log struct {
	path      string
	modelID   string
	personaID string
	options   map[string]any

	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Open prepares the log for a session at <dir>/<persona>_<session>.jsonl without touching the
// filesystem yet.
func Open(dir, personaID string, sessionID core.SessionID, modelID string, options core.Options) *Log {
	return &Log{
		path:      filepath.Join(dir, fmt.Sprintf("%s_%s.jsonl", personaID, sessionID)),
		modelID:   modelID,
		personaID: personaID,
		options:   options.Map(),
		now:       time.Now,
	}
}

func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Log) Record(role core.Role, content string) error {
	if l == nil {
		return nil
	}

	entry := Entry{
		Timestamp:         l.now().UTC(),
		ModelID:           l.modelID,
		PersonaID:         l.personaID,
		GenerationOptions: l.options,
		Role:              role,
		Content:           content,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		l.file = file
	}

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadFile loads every entry of an audit file, in order.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return entries, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
