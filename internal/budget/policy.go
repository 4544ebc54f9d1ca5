package budget

import (
	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
)

// Policy derives a token target from a persona's num_ctx and trims histories to meet it.
type Policy struct {
	Estimator
	FixedHeadroom      int
	RatioHeadroom      float64
	TailKeep           int
	NearLimitThreshold float64
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Default().Budget)
}

func PolicyFromConfig(cfg config.BudgetConfig) Policy {
	return Policy{
		Estimator: Estimator{
			CharsPerToken:   cfg.CharsPerToken,
			RequestOverhead: cfg.RequestOverhead,
			MessageOverhead: cfg.MessageOverhead,
		},
		FixedHeadroom:      cfg.FixedHeadroom,
		RatioHeadroom:      cfg.RatioHeadroom,
		TailKeep:           cfg.TailKeep,
		NearLimitThreshold: cfg.NearLimitThreshold,
	}
}

// Target is num_ctx minus the larger of the fixed and proportional headroom, clamped at zero.
func (p Policy) Target(numCtx int) int {
	headroom := max(float64(p.FixedHeadroom), p.RatioHeadroom*float64(numCtx))
	target := numCtx - int(headroom)
	if target < 0 {
		return 0
	}
	return target
}

// NearLimit reports whether history has reached the threshold share of num_ctx. Without a
// num_ctx option there is no limit to be near.
func (p Policy) NearLimit(history []core.Message, options core.Options) bool {
	numCtx, ok := options.ContextSize()
	if !ok {
		return false
	}
	return float64(p.Estimate(history)) >= float64(numCtx)*p.NearLimitThreshold
}

// Fits reports whether messages are within the target for numCtx.
func (p Policy) Fits(messages []core.Message, numCtx int) bool {
	return p.Estimate(messages) <= p.Target(numCtx)
}

// Trim drops the oldest messages between a leading system message and the last TailKeep
// messages until the estimate meets the target or nothing droppable is left. The head and
// tail always survive, so the result can still exceed the target; callers check Fits.
// messages itself is never modified.
func (p Policy) Trim(messages []core.Message, numCtx int) []core.Message {
	target := p.Target(numCtx)
	if p.Estimate(messages) <= target {
		return messages
	}

	headLen := 0
	if len(messages) > 0 && messages[0].Role == core.RoleSystem {
		headLen = 1
	}

	tailLen := min(max(p.TailKeep, 0), len(messages)-headLen)
	coreEnd := len(messages) - tailLen

	chars, counted := 0, 0
	lengths := make([]int, len(messages))
	for i, msg := range messages {
		lengths[i] = contentLength(msg.Content)
		if lengths[i] > 0 {
			chars += lengths[i]
			counted++
		}
	}

	drop := headLen
	for drop < coreEnd && p.cost(chars, counted) > target {
		if lengths[drop] > 0 {
			chars -= lengths[drop]
			counted--
		}
		drop++
	}

	trimmed := make([]core.Message, 0, len(messages)-(drop-headLen))
	trimmed = append(trimmed, messages[:headLen]...)
	trimmed = append(trimmed, messages[drop:]...)
	return trimmed
}
