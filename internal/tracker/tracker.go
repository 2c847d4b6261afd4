package tracker

import (
	"context"
	"errors"
)

// DefaultThreshold is the number of consecutive failures that blacklists a domain.
const DefaultThreshold = 3

// ErrInvalidThreshold is returned when a threshold below 1 is configured.
var ErrInvalidThreshold = errors.New("failure threshold must be at least 1")

// Status is the state of a domain after a recorded failure.
type Status struct {
	// Failures is the consecutive failure count.
	Failures int
	// Blacklisted reports whether the domain is blacklisted.
	Blacklisted bool
	// Transitioned is true only for the call that blacklisted the domain.
	Transitioned bool
}

// Tracker records per-domain failures. Implementations are safe for
// concurrent use.
type Tracker interface {
	// RecordFailure increments the consecutive failure counter of domain.
	RecordFailure(ctx context.Context, domain string) (Status, error)
	// RecordSuccess resets the counter. It never clears a blacklist.
	RecordSuccess(ctx context.Context, domain string) error
	// IsBlacklisted reports whether domain crossed the threshold.
	IsBlacklisted(ctx context.Context, domain string) (bool, error)
	// Reset clears both the counter and the blacklist entry of domain.
	Reset(ctx context.Context, domain string) error
	// Blacklisted returns all blacklisted domains, sorted.
	Blacklisted(ctx context.Context) ([]string, error)
}
