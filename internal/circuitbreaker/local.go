// Local.go wraps sony/gobreaker as the process-local, fast fail-fast layer
// in front of a single outbound call (to the marketplace or to the
// scraper service's HTTP contract). It complements, but does not
// replace, the Redis-backed multi-level Breaker above: gobreaker trips on
// this process's own recent call history, while Breaker coordinates
// suspension across every worker process (SPEC_FULL.md §2).
package circuitbreaker

import (
	"github.com/sony/gobreaker"
)

// NewLocal builds a process-local circuit breaker named name, tripping
// after consecutiveFailures consecutive failures and resetting after a
// half-open probe succeeds.
func NewLocal(name string, consecutiveFailures uint32) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
