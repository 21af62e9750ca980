package session

import "context"

// SlotStore is durable key-value storage for session slots.
// This interface is defined in the domain to avoid circular imports.
// Implementations: file (default), sqlite, redis, in-memory (test).
type SlotStore interface {
	// Load returns the values of the requested slots that are present.
	// Absent slots are simply missing from the returned map.
	Load(ctx context.Context, keys ...string) (map[string]string, error)

	// Store writes all given slots in one atomic operation.
	Store(ctx context.Context, values map[string]string) error

	// Remove deletes the given slots in one atomic operation.
	// Removing an absent slot is not an error.
	Remove(ctx context.Context, keys ...string) error

	// Close releases the underlying resources.
	Close() error
}
