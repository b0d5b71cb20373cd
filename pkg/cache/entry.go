package cache

import (
	"time"
)

// DefaultTTL is the validity window used when a resource does not set one.
const DefaultTTL = 5 * time.Minute

// Entry is a cached value with its freshness window.
type Entry struct {
	// Key is the stable serialization of the request identity.
	Key string

	// Resource tags the entry with the logical resource it belongs to
	// (e.g. "contacts"). Empty for untagged entries.
	Resource string

	// Value is the cached payload.
	Value any

	// StoredAt is when the value was written or last refreshed.
	StoredAt time.Time

	// TTL is how long the value stays fresh after StoredAt.
	TTL time.Duration
}

// Age returns how long ago the entry was stored, relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return age
}

// IsFresh reports whether the entry is still within its TTL at now.
// An entry is fresh while age <= TTL.
func (e *Entry) IsFresh(now time.Time) bool {
	return e.Age(now) <= e.TTL
}

// Remaining returns the time left before the entry goes stale.
// Returns 0 if already stale.
func (e *Entry) Remaining(now time.Time) time.Duration {
	left := e.TTL - e.Age(now)
	if left < 0 {
		return 0
	}
	return left
}

// Hit is the result of a successful store read.
type Hit struct {
	Value any
	Age   time.Duration
	Fresh bool
}
