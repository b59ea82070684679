// Package breaker wraps github.com/sony/gobreaker around outbound calls
// from the source feeds (internal/feeds/{euronext,lse,xetra}); the
// enrichment, refid and fxconv clients do not use it. A vendor that is
// failing fast trips the breaker
// before every page/record exhausts its own retries. This replaces the
// teacher's several in-house circuit-breaker packages (infra/breakers,
// internal/net/circuit, internal/providers/guards/circuit.go) with the one
// real dependency already in its go.mod.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// New builds a gobreaker.CircuitBreaker named for the given upstream,
// tripping after 5 consecutive failures and allowing a single trial
// request after 30 seconds open.
func New(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
