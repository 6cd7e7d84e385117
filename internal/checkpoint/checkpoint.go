// Package checkpoint persists the harvester's high-water mark between runs.
package checkpoint

import (
	"context"
	"fmt"
)

// Backend names.
const (
	BackendMinIO = "minio"
	BackendFile  = "file"
)

// Store is a durable key/value store for checkpoint timestamps.
type Store interface {
	// Get returns the value stored under key. found is false when nothing was stored yet.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
}

// UnknownBackendError is returned for an unsupported checkpoint backend name.
type UnknownBackendError struct {
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown checkpoint backend %q (want %q or %q)", e.Backend, BackendMinIO, BackendFile)
}
