package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseWindow accepts Go durations plus a day suffix, e.g. "24h", "90m", "7d".
func ParseWindow(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q", v)
		}
		if n <= 0 {
			return 0, fmt.Errorf("window must be positive, got %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %q", v)
	}
	return d, nil
}
