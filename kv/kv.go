// Package kv is the durable key-value persistence used by the EOD cache,
// the stats cache and the historical price cache.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrNotFound = errors.New("kv: key not found")
	// ErrVersion means a record was written by a different schema version.
	// Callers rebuild instead of decoding it.
	ErrVersion = errors.New("kv: schema version mismatch")
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type envelope struct {
	Version int                `msgpack:"v"`
	Payload msgpack.RawMessage `msgpack:"p"`
}

// Put encodes v with msgpack inside a versioned envelope.
func Put(ctx context.Context, s Store, key string, version int, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	b, err := msgpack.Marshal(envelope{Version: version, Payload: payload})
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, b)
}

// Load decodes the record at key into v. It returns ErrNotFound when the key
// is absent and ErrVersion when the stored version differs from version.
func Load(ctx context.Context, s Store, key string, version int, v any) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("kv: decode %s: %w", key, err)
	}
	if env.Version != version {
		return fmt.Errorf("%w: %s has version %d, want %d", ErrVersion, key, env.Version, version)
	}
	if err := msgpack.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return nil
}
