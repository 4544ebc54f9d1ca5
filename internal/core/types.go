package core

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles a backend accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Options are the generation options of a persona. Named fields cover the knobs every
// backend understands; Extra carries backend-specific values verbatim.
type Options struct {
	Temperature   *float64       `toml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP          *float64       `toml:"top_p,omitempty" json:"top_p,omitempty"`
	TopK          *int           `toml:"top_k,omitempty" json:"top_k,omitempty"`
	RepeatPenalty *float64       `toml:"repeat_penalty,omitempty" json:"repeat_penalty,omitempty"`
	NumCtx        *int           `toml:"num_ctx,omitempty" json:"num_ctx,omitempty"`
	NumPredict    *int           `toml:"num_predict,omitempty" json:"num_predict,omitempty"`
	Seed          *int           `toml:"seed,omitempty" json:"seed,omitempty"`
	Extra         map[string]any `toml:"extra,omitempty" json:"extra,omitempty"`
}

// ContextSize returns the num_ctx option. A num_ctx placed in Extra is honoured when the
// typed field is unset; ok is false when neither holds a positive number.
func (o Options) ContextSize() (int, bool) {
	if o.NumCtx != nil && *o.NumCtx > 0 {
		return *o.NumCtx, true
	}

	if raw, found := o.Extra["num_ctx"]; found {
		if n := IntFromAny(raw); n > 0 {
			return n, true
		}
	}

	return 0, false
}

// Map flattens the options into the key/value form backends and the audit log use.
func (o Options) Map() map[string]any {
	out := make(map[string]any, len(o.Extra)+7)
	for k, v := range o.Extra {
		out[k] = v
	}

	if o.Temperature != nil {
		out["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		out["top_p"] = *o.TopP
	}
	if o.TopK != nil {
		out["top_k"] = *o.TopK
	}
	if o.RepeatPenalty != nil {
		out["repeat_penalty"] = *o.RepeatPenalty
	}
	if o.NumCtx != nil {
		out["num_ctx"] = *o.NumCtx
	}
	if o.NumPredict != nil {
		out["num_predict"] = *o.NumPredict
	}
	if o.Seed != nil {
		out["seed"] = *o.Seed
	}

	return out
}

// ContextSnapshot describes how full a persona's context window is.
type ContextSnapshot struct {
	PersonaID       string `json:"persona_id"`
	ContextSize     int    `json:"context_size"`
	Target          int    `json:"target"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Messages        int    `json:"messages"`
	NearLimit       bool   `json:"near_limit"`
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
