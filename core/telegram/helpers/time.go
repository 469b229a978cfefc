package helpers

import (
	"strconv"
	"strings"
	"time"
)

// ParseMinutes reads a duration given either as a bare number of minutes
// ("30") or in Go syntax ("1h30m"). Non-positive values are rejected.
func ParseMinutes(input string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n) * time.Minute, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
