// Package storage persists small JSON documents that outlive a gateway restart:
// the session subset and the cart cache.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"velancis-storefront/internal/observability"
)

// Fixed keys of the two independent namespaces
const (
	SessionKey = "auth-storage"
	CartKey    = "cart-storage"
)

var ErrNotFound = errors.New("storage: key not found")

// Storage is a durable key/value store for JSON blobs
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// LoadJSON decodes the value under key into dst. It reports false when the key is absent.
func LoadJSON(ctx context.Context, s Storage, key string, dst any) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key
func SaveJSON(ctx context.Context, s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := s.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Instrument wraps s so every operation is recorded in the storage latency histogram
func Instrument(backend string, s Storage) Storage {
	return &instrumented{backend: backend, next: s}
}

type instrumented struct {
	backend string
	next    Storage
}

func (i *instrumented) observe(op string, start time.Time) {
	observability.StorageOpDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	defer i.observe("get", time.Now())
	return i.next.Get(ctx, key)
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte) error {
	defer i.observe("set", time.Now())
	return i.next.Set(ctx, key, value)
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	defer i.observe("delete", time.Now())
	return i.next.Delete(ctx, key)
}

func (i *instrumented) Ping(ctx context.Context) error {
	defer i.observe("ping", time.Now())
	return i.next.Ping(ctx)
}
