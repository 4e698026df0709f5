package powerline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	cases := []struct {
		ahead, total int64
		want         int
	}{
		{0, 0, 0},
		{0, 1, 0},
		{0, 2, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{29, 200, 14},
		{23, 40, 57},
		{3, 4, 75},
		{99, 100, 99},
		{5, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Percentile(tc.ahead, tc.total), "Percentile(%d, %d)", tc.ahead, tc.total)
	}
}

func TestFormattedPosition(t *testing.T) {
	assert.Equal(t, "#1", FormattedPosition(1))
	assert.Equal(t, "#999", FormattedPosition(999))
	assert.Equal(t, "#1,000", FormattedPosition(1000))
	assert.Equal(t, "#1,234,567", FormattedPosition(1234567))
	assert.Equal(t, "#-1,000", FormattedPosition(-1000))
}

func TestTimeInQueue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Just joined", TimeInQueue(now.Add(-10*time.Minute), now))
	assert.Equal(t, "5h", TimeInQueue(now.Add(-5*time.Hour-10*time.Minute), now))
	assert.Equal(t, "2d 3h", TimeInQueue(now.Add(-51*time.Hour), now))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Just now", TimeAgo(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", TimeAgo(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", TimeAgo(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", TimeAgo(now.Add(-49*time.Hour), now))
}
