// Package budget approximates the token cost of a conversation and trims it to fit a
// persona's context window. The estimate is a heuristic: it only has to be stable and grow
// with the amount of text, because it drives a greedy truncation, not a protocol limit.
package budget

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/erg0nix/chorus/internal/core"
)

const (
	DefaultCharsPerToken   = 3.25
	DefaultRequestOverhead = 3
	DefaultMessageOverhead = 4
)

type Estimator struct {
	CharsPerToken   float64
	RequestOverhead int
	MessageOverhead int
}

func DefaultEstimator() Estimator {
	return Estimator{
		CharsPerToken:   DefaultCharsPerToken,
		RequestOverhead: DefaultRequestOverhead,
		MessageOverhead: DefaultMessageOverhead,
	}
}

// Estimate returns the approximate token count of messages. Messages whose content is blank
// after whitespace normalisation do not count.
func (e Estimator) Estimate(messages []core.Message) int {
	chars, counted := 0, 0
	for _, msg := range messages {
		n := contentLength(msg.Content)
		if n == 0 {
			continue
		}
		chars += n
		counted++
	}
	return e.cost(chars, counted)
}

func (e Estimator) cost(chars, counted int) int {
	if counted == 0 {
		return 0
	}

	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultCharsPerToken
	}

	tokens := int(math.Ceil(float64(chars) / cpt))
	return tokens + e.RequestOverhead + e.MessageOverhead*counted
}

// contentLength is the rune count of content with whitespace runs collapsed and trimmed.
func contentLength(content string) int {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return 0
	}

	n := len(fields) - 1
	for _, f := range fields {
		n += utf8.RuneCountInString(f)
	}
	return n
}
