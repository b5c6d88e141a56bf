// Package storage defines the durable snapshot backends used for checkpoints.
package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read when no snapshot has been written yet.
var ErrNotExist = errors.New("snapshot does not exist")

// Backend reads and writes a single opaque snapshot. Write must be atomic:
// a concurrent reader observes either the previous or the new snapshot in full.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	URI() string
}
