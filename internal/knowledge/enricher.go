// Package knowledge looks up short reference snippets for the topic of a question and injects
// them into a conversation as system context. Every failure degrades to "no snippet".
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
)

const GuardrailInstruction = "Use only the following context to answer. If the answer is not in the context, say that you do not know."

// Result is what a lookup produced. Hint is meant for the person asking and is never sent to
// the backend; Snippet is empty whenever nothing usable came back.
type Result struct {
	Hint    string `json:"hint,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

type Enricher struct {
	Extractor KeywordExtractor
	Source    SnippetSource
	Cache     Cache
	Limit     int
	Logger    *slog.Logger

	closer io.Closer
}

// FromConfig builds an enricher backed by the HTTP snippet service. It returns nil when
// knowledge lookups are disabled; a nil *Enricher looks up nothing.
func FromConfig(cfg config.KnowledgeConfig, logger *slog.Logger) *Enricher {
	if !cfg.Enabled {
		return nil
	}

	e := &Enricher{
		Extractor: HeuristicExtractor{},
		Source:    NewClient(cfg),
		Limit:     cfg.Limit,
		Logger:    logger,
	}

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	switch cfg.Cache {
	case config.CacheMemory:
		e.Cache = NewMemoryCache(ttl)
	case config.CacheRedis:
		cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), ttl, logger)
		e.Cache = cache
		e.closer = cache
	}

	return e
}

func (e *Enricher) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func (e *Enricher) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Lookup finds the top topic in question and fetches its snippet for persona. It never fails:
// a missing topic yields an empty Result, a 404 a not-found hint, anything else an unreachable
// hint.
func (e *Enricher) Lookup(ctx context.Context, question, persona string) Result {
	if e == nil || e.Source == nil {
		return Result{}
	}

	extractor := e.Extractor
	if extractor == nil {
		extractor = HeuristicExtractor{}
	}

	topic, err := extractor.TopKeyword(ctx, question)
	if err != nil {
		e.logger().Warn("keyword extraction failed", "persona", persona, "error", err)
		return Result{}
	}
	if topic == "" {
		return Result{}
	}

	if e.Cache != nil {
		if snippet, ok := e.Cache.Get(ctx, persona, topic); ok {
			return e.found(topic, snippet)
		}
	}

	snippet, err := e.Source.Fetch(ctx, topic, persona)
	switch {
	case err == nil:
		if e.Cache != nil {
			e.Cache.Set(ctx, persona, topic, snippet)
		}
		return e.found(topic, snippet)
	case errors.Is(err, ErrNotFound):
		return Result{Hint: fmt.Sprintf("No reference entry found for %q.", topic), Topic: topic}
	default:
		e.logger().Warn("knowledge lookup failed", "persona", persona, "topic", topic, "error", err)
		return Result{Hint: fmt.Sprintf("Reference service unreachable, answering without context for %q.", topic), Topic: topic}
	}
}

func (e *Enricher) found(topic string, snippet Snippet) Result {
	hint := snippet.WikiHint
	if hint == "" {
		hint = fmt.Sprintf("Context from the reference entry for %q.", topic)
	}
	return Result{Hint: hint, Topic: topic, Snippet: truncate(strings.TrimSpace(snippet.Text), e.Limit)}
}

// Inject appends the guardrail instruction and the topic context to history when snippet is
// non-empty. Existing messages are never touched.
func Inject(history []core.Message, topic, snippet string) []core.Message {
	if strings.TrimSpace(snippet) == "" {
		return history
	}

	return append(history,
		core.SystemMessage(GuardrailInstruction),
		core.SystemMessage(fmt.Sprintf("Context on %s:\n%s", topic, snippet)),
	)
}

// truncate cuts text to at most limit runes, preferring the last word boundary.
func truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
