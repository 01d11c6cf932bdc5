package throttle

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter accepts either an integer-seconds or an HTTP-date
// Retry-After header value and returns a non-negative delay (spec.md §5
// "Cancellation and timeouts": "parse_retry_after accepts either integer
// seconds or an HTTP-date and returns a non-negative delay").
func ParseRetryAfter(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
