package personas

import (
	"errors"
	"fmt"

	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/core"
)

func Validate(cfg *PersonaConfig) error {
	if cfg == nil {
		return errors.New("persona config is nil")
	}

	if cfg.ID == "" {
		return errors.New("persona id is required")
	}

	return ValidateOptions(cfg.Options)
}

func ValidateOptions(o core.Options) error {
	if o.Temperature != nil {
		if *o.Temperature < 0 || *o.Temperature > 2 {
			return &config.OptionRangeError{Param: "options.temperature", Value: *o.Temperature, Min: 0, Max: 2}
		}
	}
	if o.TopP != nil {
		if *o.TopP < 0 || *o.TopP > 1 {
			return &config.OptionRangeError{Param: "options.top_p", Value: *o.TopP, Min: 0, Max: 1}
		}
	}
	if o.TopK != nil && *o.TopK < 0 {
		return fmt.Errorf("options.top_k must be non-negative, got %d", *o.TopK)
	}
	if o.RepeatPenalty != nil {
		if *o.RepeatPenalty < 0 || *o.RepeatPenalty > 2 {
			return &config.OptionRangeError{Param: "options.repeat_penalty", Value: *o.RepeatPenalty, Min: 0, Max: 2}
		}
	}
	if o.NumCtx != nil && *o.NumCtx <= 0 {
		return fmt.Errorf("options.num_ctx must be greater than 0, got %d", *o.NumCtx)
	}
	if o.NumPredict != nil && *o.NumPredict == 0 {
		return errors.New("options.num_predict must not be 0")
	}
	return nil
}
