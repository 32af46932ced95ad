package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EpochSeconds coerces an export timestamp to integer epoch seconds. Export
// timestamps arrive as fractional floats, strings, or nothing at all; any
// value that cannot be parsed yields the fallback.
func EpochSeconds(v any, fallback int64) int64 {
	switch t := v.(type) {
	case nil:
		return fallback
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return fallback
		}
		return int64(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return fallback
		}
		return int64(f)
	default:
		return fallback
	}
}
