// Package guard classifies text against configured prompt-injection, personal-data and
// secret patterns. A Guard is immutable after construction and safe for concurrent use.
package guard

import (
	"fmt"
	"regexp"

	"github.com/erg0nix/chorus/internal/config"
)

type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonPromptInjection Reason = "prompt_injection"
	ReasonPIIDetected     Reason = "pii_detected"
	ReasonBlockedKeyword  Reason = "blocked_keyword"
)

const redactionMarker = "[redacted]"

type Verdict struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

var allow = Verdict{OK: true, Reason: ReasonOK}

// OutputResult is the outcome of moderating a partial reply mid-stream.
type OutputResult struct {
	Blocked bool
	Text    string
	Reason  Reason
}

type Options struct {
	Enabled   bool
	RedactPII bool
	Injection []string
	PII       []string
	Blocklist []string
}

type Guard struct {
	enabled   bool
	redactPII bool
	injection []*regexp.Regexp
	pii       []*regexp.Regexp
	blocklist []*regexp.Regexp
}

type rule struct {
	reason   Reason
	patterns []*regexp.Regexp
}

// New compiles the pattern sets case-insensitively. Nil pattern lists fall back to the
// defaults; an empty non-nil list disables that category.
func New(opts Options) (*Guard, error) {
	g := &Guard{enabled: opts.Enabled, redactPII: opts.RedactPII}

	var err error
	if g.injection, err = compile("injection", orDefault(opts.Injection, DefaultInjectionPatterns)); err != nil {
		return nil, err
	}
	if g.pii, err = compile("pii", orDefault(opts.PII, DefaultPIIPatterns)); err != nil {
		return nil, err
	}
	if g.blocklist, err = compile("blocklist", orDefault(opts.Blocklist, DefaultBlocklistPatterns)); err != nil {
		return nil, err
	}

	return g, nil
}

func FromConfig(cfg config.GuardConfig) (*Guard, error) {
	return New(Options{
		Enabled:   cfg.Enabled,
		RedactPII: cfg.RedactPII,
		Injection: cfg.InjectionPatterns,
		PII:       cfg.PIIPatterns,
		Blocklist: cfg.BlocklistPatterns,
	})
}

func (g *Guard) Enabled() bool {
	return g != nil && g.enabled
}

// CheckInput screens user text: prompt injection first, then personal data.
func (g *Guard) CheckInput(text string) Verdict {
	if !g.Enabled() {
		return allow
	}
	return firstMatch(text,
		rule{ReasonPromptInjection, g.injection},
		rule{ReasonPIIDetected, g.pii},
	)
}

// CheckOutput screens a complete reply: personal data first, then the secret blocklist.
func (g *Guard) CheckOutput(text string) Verdict {
	if !g.Enabled() {
		return allow
	}
	return firstMatch(text,
		rule{ReasonPIIDetected, g.pii},
		rule{ReasonBlockedKeyword, g.blocklist},
	)
}

// ProcessOutput moderates text accumulated during streaming. Personal data is redacted when
// redaction is enabled and blocks otherwise; a blocklist hit always blocks.
func (g *Guard) ProcessOutput(accumulated string) OutputResult {
	if !g.Enabled() {
		return OutputResult{Text: accumulated, Reason: ReasonOK}
	}

	text := accumulated
	reason := ReasonOK

	for _, pattern := range g.pii {
		if !pattern.MatchString(text) {
			continue
		}
		if !g.redactPII {
			return OutputResult{Blocked: true, Reason: ReasonPIIDetected}
		}
		text = pattern.ReplaceAllString(text, redactionMarker)
		reason = ReasonPIIDetected
	}

	for _, pattern := range g.blocklist {
		if pattern.MatchString(text) {
			return OutputResult{Blocked: true, Reason: ReasonBlockedKeyword}
		}
	}

	return OutputResult{Text: text, Reason: reason}
}

func firstMatch(text string, rules ...rule) Verdict {
	for _, r := range rules {
		for i, pattern := range r.patterns {
			if pattern.MatchString(text) {
				return Verdict{OK: false, Reason: r.reason, Detail: fmt.Sprintf("%s pattern %d", r.reason, i)}
			}
		}
	}
	return allow
}

func compile(kind string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("guard: %s pattern %d: %w", kind, i, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func orDefault(patterns, defaults []string) []string {
	if patterns == nil {
		return defaults
	}
	return patterns
}
