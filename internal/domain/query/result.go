package query

import "time"

// Status is the lifecycle state of a cache entry or mutation.
type Status string

const (
	// StatusUninitialized means nothing has been requested yet.
	StatusUninitialized Status = "uninitialized"
	// StatusLoading means a request is in flight.
	StatusLoading Status = "loading"
	// StatusSuccess means the last request succeeded.
	StatusSuccess Status = "success"
	// StatusError means the last request failed.
	StatusError Status = "error"
)

// Result is an immutable snapshot of a cache entry.
// Data survives a failed refetch, so Status can be StatusError while
// HasData is still true.
type Result struct {
	Status     Status
	Data       any
	HasData    bool
	Err        error
	IsFetching bool
	// FulfilledAt is when Data was last replaced.
	FulfilledAt time.Time
}

// IsLoading reports whether the first fetch is still pending.
func (r Result) IsLoading() bool {
	return r.IsFetching && !r.HasData
}

// Settled reports whether no fetch is in flight and the entry has been
// resolved at least once.
func (r Result) Settled() bool {
	return !r.IsFetching && (r.Status == StatusSuccess || r.Status == StatusError)
}

// Data returns the snapshot's payload as T.
func Data[T any](r Result) (T, bool) {
	var zero T
	if !r.HasData {
		return zero, false
	}
	v, ok := r.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// MutationResult is the outcome of one mutation call. It is never cached.
type MutationResult struct {
	Endpoint string
	Status   Status
	Data     any
	Err      error
	// Invalidation describes the cache work triggered by a successful call.
	Invalidation InvalidationReport
}

// OK reports whether the mutation succeeded.
func (m MutationResult) OK() bool {
	return m.Status == StatusSuccess
}

// InvalidationReport summarizes what an invalidation did to the cache.
type InvalidationReport struct {
	// Refetched counts subscribed entries that started (or queued) a refetch.
	Refetched int
	// Evicted counts unsubscribed entries dropped from the cache.
	Evicted int
}
