package session

import (
	"strings"

	"github.com/erg0nix/chorus/internal/config"
)

// DefaultArtifactMarkers are chat-template control tokens that some backends leak into the
// reply text.
var DefaultArtifactMarkers = []string{
	"<|im_start|>", "<|im_end|>", "<|eot_id|>", "<|end_of_text|>", "<|start_header_id|>",
	"<|end_header_id|>", "<|assistant|>", "<|end|>", "</s>", "<s>",
}

// DefaultNoiseTokens are role labels a model sometimes echoes before its reply. Only the
// assistant's own name is dropped bare; other roles need the colon so a reply may still open
// with "user" or "system".
var DefaultNoiseTokens = []string{
	"assistant", "Assistant", "assistant:", "Assistant:",
	"user:", "User:", "system:", "System:",
}

const boundaryChars = " \n\t!?"

// Filter cleans raw backend text before it is moderated and shown.
type Filter struct {
	markers  []string
	replacer *strings.Replacer
	noise    map[string]struct{}
}

func NewFilter(cfg config.StreamConfig) *Filter {
	markers := cfg.ArtifactMarkers
	if markers == nil {
		markers = DefaultArtifactMarkers
	}
	noise := cfg.NoiseTokens
	if noise == nil {
		noise = DefaultNoiseTokens
	}

	pairs := make([]string, 0, 2*len(markers))
	for _, m := range markers {
		if m != "" {
			pairs = append(pairs, m, "")
		}
	}

	f := &Filter{markers: markers, replacer: strings.NewReplacer(pairs...), noise: make(map[string]struct{}, len(noise))}
	for _, n := range noise {
		f.noise[n] = struct{}{}
	}
	return f
}

// IsNoise reports whether chunk is nothing but an echoed role name.
func (f *Filter) IsNoise(chunk string) bool {
	_, ok := f.noise[strings.TrimSpace(chunk)]
	return ok
}

// Clean strips complete artifact markers from text. A trailing fragment that could still grow
// into a marker is returned separately as held so the caller can prepend it to the next chunk.
func (f *Filter) Clean(text string) (clean, held string) {
	text = f.replacer.Replace(text)

	if i := strings.LastIndexByte(text, '<'); i >= 0 {
		tail := text[i:]
		for _, m := range f.markers {
			if len(tail) < len(m) && strings.HasPrefix(m, tail) {
				return text[:i], tail
			}
		}
	}

	return text, ""
}

// hasBoundary reports whether text contains a point at which a buffered fragment may be
// released.
func hasBoundary(text string) bool {
	return strings.ContainsAny(text, boundaryChars)
}

// splitAtBoundary cuts text after its last boundary character. rest is the unfinished word
// that follows it, or all of text when there is no boundary.
func splitAtBoundary(text string) (ready, rest string) {
	i := strings.LastIndexAny(text, boundaryChars)
	if i < 0 {
		return "", text
	}
	return text[:i+1], text[i+1:]
}
