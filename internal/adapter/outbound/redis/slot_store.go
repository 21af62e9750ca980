// Package redis provides a Redis-backed session slot store, so several
// operator hosts can share one console session.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces slot keys.
const DefaultPrefix = "certdesk-admin:"

// SlotStore implements session.SlotStore with one Redis string per slot.
// Multi-slot writes and deletes run in a MULTI/EXEC pipeline.
type SlotStore struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewSlotStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewSlotStore(client *goredis.Client, prefix string, logger *slog.Logger) *SlotStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &SlotStore{client: client, prefix: prefix, logger: logger}
}

// Dial connects to addr/db and verifies the connection with PING.
func Dial(ctx context.Context, addr string, db int, prefix string, logger *slog.Logger) (*SlotStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewSlotStore(client, prefix, logger), nil
}

// Load returns the requested slots that are present.
func (s *SlotStore) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := s.client.MGet(ctx, s.keys(keys)...).Result()
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for i, v := range values {
		// MGET reports missing keys as nil.
		str, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = str
	}
	return out, nil
}

// Store writes all given slots in one transaction.
func (s *SlotStore) Store(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store slots: %w", err)
	}
	s.logger.Debug("session slots stored in redis", "count", len(values))
	return nil
}

// Remove deletes the given slots in one transaction.
func (s *SlotStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.keys(keys)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove slots: %w", err)
	}
	s.logger.Debug("session slots removed from redis", "count", len(keys))
	return nil
}

// Close closes the underlying client.
func (s *SlotStore) Close() error {
	return s.client.Close()
}

func (s *SlotStore) keys(slots []string) []string {
	out := make([]string, len(slots))
	for i, k := range slots {
		out[i] = s.prefix + k
	}
	return out
}
