package domain

import (
	"fmt"
	"math"
)

// SanitizeDebug restricts a diagnostic value to the closed set of
// JSON-serializable shapes: string, number, boolean, nil, and maps/slices
// of the same. Everything else (functions, channels, opaque handles) is
// replaced by its fmt representation so serialization stays total.
// Non-finite floats are stringified because encoding/json rejects them.
func SanitizeDebug(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int, int32, int64, uint, uint32, uint64:
		return val
	case float32:
		return sanitizeFloat(float64(val))
	case float64:
		return sanitizeFloat(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = SanitizeDebug(nested)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, nested := range val {
			out = append(out, SanitizeDebug(nested))
		}
		return out
	case []string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// SanitizeDebugMap applies SanitizeDebug to every value of a debug bag.
func SanitizeDebugMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = SanitizeDebug(v)
	}
	return out
}

func sanitizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprintf("%v", f)
	}
	return f
}
