package counter

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the counter backend is unreachable.
var ErrUnavailable = errors.New("counter backend unavailable")

// Result is the outcome of a single evaluate-and-admit call.
type Result struct {
	// Allowed reports whether the event was admitted into the window.
	Allowed bool
	// Count is the number of events in the window after this call,
	// including the admitted event when Allowed is true.
	Count int
	// Oldest is the timestamp of the oldest event still in the window.
	// Zero when the window is empty.
	Oldest time.Time
}

// Backend is the atomic evaluate-and-increment contract shared by the
// in-memory and Redis counter stores.
type Backend interface {
	// Evaluate prunes entries older than window, counts the remainder, and
	// admits the current event when the count is below limit. Rejections do
	// not mutate state.
	Evaluate(ctx context.Context, key string, limit int, window time.Duration) (Result, error)

	// Reset drops all entries for key.
	Reset(ctx context.Context, key string) error
}
