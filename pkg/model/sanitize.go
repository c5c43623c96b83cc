package model

import (
	"math"
	"strconv"
	"strings"
)

// maxCount is 2^63, the first float64 that does not fit in an int64.
const maxCount = 1 << 63

// SafeCount coerces a raw counter into a non-negative integer. Non-numeric and non-finite
// values become 0, values beyond the int64 range are clamped to math.MaxInt64. The second
// return value reports whether coercion was needed.
func SafeCount(v any) (int64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, true
		}
		f = parsed
	default:
		return 0, true
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, true
	}
	if f < 0 {
		return 0, true
	}
	if f >= maxCount {
		return math.MaxInt64, true
	}
	return int64(math.Floor(f)), false
}
