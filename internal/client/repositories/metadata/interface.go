// Package metadata stores small client-local key/value settings, such as
// the generated device id, next to the notes.
package metadata

import (
	"context"
)

// Keys used by the client.
const (
	KeyDeviceID = "device_id"
)

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// EnsureString returns the stored value for key. When nothing is stored yet,
// it stores and returns generate().
func EnsureString(ctx context.Context, r Repository, key string, generate func() string) (string, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if len(v) > 0 {
		return string(v), nil
	}

	s := generate()
	if err := r.Set(ctx, key, []byte(s)); err != nil {
		return "", err
	}
	return s, nil
}
