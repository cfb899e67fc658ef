package telemetry

import (
	"encoding/json"
	"strconv"
)

// lookupPath walks a decoded JSON value. It reports false when any segment
// is absent, indexes past the end of a list, or meets a scalar, and when the
// final value is null.
func lookupPath(v any, segments []string) (any, bool) {
	cur := v
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func extractNumber(v any, segments []string) (float64, bool) {
	raw, ok := lookupPath(v, segments)
	if !ok {
		return 0, false
	}
	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func extractFlag(v any, segments []string) (bool, bool) {
	raw, ok := lookupPath(v, segments)
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}
