package normalize

import (
	"math"
	"strings"
)

// ClampPercent bounds p to [0, 100].
func ClampPercent(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}

// PercentsFromCounts derives used/left percentages from absolute counts.
// Left is rounded half-to-even; used is always 100 - left.
func PercentsFromCounts(remaining, limit int64) (used, left float64) {
	left = ClampPercent(math.RoundToEven(float64(remaining) / float64(limit) * 100))
	used = ClampPercent(100 - left)
	return used, left
}

// LeftFromUsed returns 100 - used for integral percentages and false otherwise.
func LeftFromUsed(used float64) (float64, bool) {
	if used != math.Trunc(used) || math.IsInf(used, 0) {
		return 0, false
	}
	return ClampPercent(100 - used), true
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
