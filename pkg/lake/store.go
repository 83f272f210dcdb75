// Package lake writes raw batches to the bronze tier of the object store and
// maintains the per-entity ingestion watermark.
package lake

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrPreconditionFailed indicates a conditional write lost the race:
	// the object changed (or appeared) since it was read.
	ErrPreconditionFailed = errors.New("object precondition failed")
)

// Object is stored data plus the version tag the store assigned to it.
type Object struct {
	Data []byte
	ETag string
}

// ObjectStore is the raw storage tier. A Put is atomic: either the full
// object becomes visible at its key or nothing does.
type ObjectStore interface {
	// Get reads an object. Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Put writes an object unconditionally, replacing any prior version.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// PutIf writes an object only if its current version matches etag.
	// An empty etag requires the key to be absent. Returns
	// ErrPreconditionFailed when the condition does not hold.
	PutIf(ctx context.Context, key string, data []byte, contentType, etag string) error
}
