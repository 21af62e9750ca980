package query

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key identifies one cache entry: an endpoint plus its serialized params.
type Key string

// BuildKey derives the cache key for an endpoint and its params.
// Params are serialized as JSON, which orders struct fields by declaration
// and map keys lexically, so equal params always produce equal keys.
// It also returns the serialized params for logging.
func BuildKey(endpoint string, params any) (Key, string, error) {
	args := "null"
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return "", "", fmt.Errorf("serialize params for %s: %w", endpoint, err)
		}
		args = string(data)
	}

	h := xxhash.New()
	_, _ = h.WriteString(endpoint)
	_, _ = h.Write([]byte{0}) // separator
	_, _ = h.WriteString(args)

	return Key(fmt.Sprintf("%s:%016x", endpoint, h.Sum64())), args, nil
}
