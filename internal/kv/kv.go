// Package kv is the persistent key-value store collaborator. Values are opaque
// byte slices grouped by a logical store name; callers usually go through
// GetJSON and SetJSON.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("kv: store closed")

// Store is a crash-durable key-value store partitioned by logical store name.
type Store interface {
	Get(ctx context.Context, store, key string) ([]byte, bool, error)
	Set(ctx context.Context, store, key string, value []byte) error
	Remove(ctx context.Context, store, key string) error
	ListKeys(ctx context.Context, store string) ([]string, error)
	Clear(ctx context.Context, store string) error
	Close() error
}

// GetJSON loads key and decodes it into out. Missing keys report found=false with no error.
func GetJSON(ctx context.Context, s Store, store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, store, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("kv: decode %s/%s: %w", store, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s/%s: %w", store, key, err)
	}
	return s.Set(ctx, store, key, raw)
}
