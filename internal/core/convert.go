package core

import "encoding/json"

// IntFromAny converts a decoded numeric option value to int. TOML yields int64, JSON yields
// float64 or json.Number; anything else converts to 0.
func IntFromAny(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
		return 0
	default:
		return 0
	}
}
