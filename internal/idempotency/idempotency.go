package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrInProgress signals that the same request id is currently being processed
// by another worker. Callers should tell the client to retry, never proceed
// to a second write.
var ErrInProgress = errors.New("request is already being processed")

// Cache maps a request id to the serialized result of its first successful
// processing. Duplicate deliveries within the TTL window get the cached
// result back verbatim.
type Cache interface {
	// Get returns the cached result for requestID if one exists and has not
	// expired. It returns ErrInProgress while a processing marker is held.
	Get(ctx context.Context, requestID string) ([]byte, bool, error)

	// BeginProcessing claims requestID for the calling worker. It returns
	// false when another worker already holds the claim. The marker expires
	// after ttl so a crashed worker cannot wedge the key forever.
	BeginProcessing(ctx context.Context, requestID string, ttl time.Duration) (bool, error)

	// Store replaces the processing marker with the final result.
	Store(ctx context.Context, requestID string, result []byte, ttl time.Duration) error

	// Release drops the processing marker after a failed attempt so the next
	// delivery is treated as new.
	Release(ctx context.Context, requestID string) error
}
