package cache

import (
	"context"
	"time"
)

// Cache stores raw build server responses. Get returns ErrMiss, or an error wrapping it,
// when the key is absent.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, content []byte, duration time.Duration) error
}
