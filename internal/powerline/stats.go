package powerline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Percentile returns round(ahead / total * 100), or 0 for an empty queue.
// The ratio is taken in float64 before rounding half up, so 29 of 200
// (14.499999999999998) reports 14, matching the figures clients already show.
func Percentile(ahead, total int64) int {
	if total <= 0 || ahead <= 0 {
		return 0
	}
	pct := decimal.NewFromFloat(float64(ahead) / float64(total) * 100).Round(0)
	return int(pct.IntPart())
}

// FormattedPosition renders a position with thousands separators: #1,234.
func FormattedPosition(p int64) string {
	digits := strconv.FormatInt(p, 10)
	sign := ""
	if p < 0 {
		sign, digits = "-", digits[1:]
	}

	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return "#" + sign + string(out)
}

// TimeInQueue describes how long a position has been held: "2d 3h", "5h" or "Just joined".
func TimeInQueue(joinedAt, now time.Time) string {
	diff := now.Sub(joinedAt)
	if diff < 0 {
		diff = -diff
	}
	days := int(diff / (24 * time.Hour))
	hours := int((diff % (24 * time.Hour)) / time.Hour)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return "Just joined"
	}
}

// TimeAgo is the feed label for an event: "Just now", "5m ago", "3h ago", "2d ago".
func TimeAgo(t, now time.Time) string {
	seconds := int64(now.Sub(t) / time.Second)

	switch {
	case seconds < 60:
		return "Just now"
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return fmt.Sprintf("%dd ago", seconds/86400)
	}
}
