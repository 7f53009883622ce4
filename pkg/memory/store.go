// Package memory keeps per-identity violation history - the only piece of
// shared mutable state in the decision pipeline. A violation is any request
// that resolves to a flag or block base action; the counter decays to zero
// after a configurable window with no violations.
package memory

import (
	"context"
	"time"
)

// DefaultDecayWindow is how long a violation streak survives without a new
// violation before the counter resets.
const DefaultDecayWindow = 10 * time.Minute

// Record is one identity's violation history. Owned exclusively by the
// store; mutated only through RecordAndEscalate.
type Record struct {
	Identity       string    `json:"identity"`
	ViolationCount int       `json:"violation_count"`
	LastViolation  time.Time `json:"last_violation"`
}

// Store is the identity memory contract.
//
// RecordAndEscalate is the atomic read-modify-write step of the pipeline:
// when violated is true the counter is incremented and the decay window
// refreshed; when false the current (decayed) count is returned unchanged.
// The returned hits value is always the post-update violation count.
// Updates for the same identity serialize; distinct identities never block
// one another.
type Store interface {
	Read(ctx context.Context, identity string) (Record, bool, error)
	RecordAndEscalate(ctx context.Context, identity string, violated bool) (hits int, err error)
}
