package query

import "context"

// FetchFunc performs the network request behind a query.
type FetchFunc func(ctx context.Context) (any, error)

// Definition describes a query: which endpoint, with which params, the
// tags its entry provides, and how to fetch it.
type Definition struct {
	Endpoint string
	Params   any
	Tags     []Tag
	Fetch    FetchFunc
}

// Mutation describes a one-shot write and the tags it invalidates on success.
type Mutation struct {
	Endpoint    string
	Invalidates []Tag
	Do          FetchFunc
}
