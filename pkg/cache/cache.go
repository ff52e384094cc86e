// Package cache is C1 SharedCache: a cross-process TTL cache with
// pattern-delete, backed by either an in-process map (cachemem) or Redis
// (cacheredis). Grounded on the teacher's pkg/jobx backend-swap pattern
// (jobx.Queue interface + jobxmem/jobxredis implementations).
package cache

import (
	"context"
	"net/http"
	"time"

	"github.com/flowctl/core/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("CACHE")

var CodeBackendFailure = ErrRegistry.Register("BACKEND_FAILURE", errx.TypeExternal, http.StatusBadGateway, "cache backend operation failed")

func ErrBackendFailure(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeBackendFailure, cause)
}

// Cache is the capability every C4/C6/C7/C9 hot-path cache read goes
// through. Get reports a cache miss by returning ok=false with a nil error;
// a non-nil error always means the backend itself failed.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes every key matching a glob-style pattern
	// (e.g. "user_scopes:42:*"), used to invalidate derived caches on
	// role, custom-role, or tenant-extension change.
	DeletePattern(ctx context.Context, pattern string) error
}
