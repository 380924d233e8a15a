package lockout

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the lockout backend is unreachable.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Config holds the lockout policy knobs.
type Config struct {
	// MaxAttempts is the failure count that triggers a lockout.
	MaxAttempts int
	// Window is the rolling window failures are counted in.
	Window time.Duration
	// BaseDuration is the first lockout duration.
	BaseDuration time.Duration
	// MaxDuration caps progressive growth.
	MaxDuration time.Duration
	// CountTTL is how long the episode counter survives without a new
	// lockout.
	CountTTL time.Duration
	// Progressive doubles the duration per prior episode when true.
	Progressive bool
}

// Duration returns the lockout duration for the given prior episode count.
func (c Config) Duration(count int) time.Duration {
	if !c.Progressive || count <= 0 {
		return c.BaseDuration
	}
	d := c.BaseDuration
	for i := 0; i < count; i++ {
		d *= 2
		if d >= c.MaxDuration {
			return c.MaxDuration
		}
	}
	return d
}

// Status reports whether an identifier is currently locked.
type Status struct {
	Locked    bool
	Remaining time.Duration
}

// Attempt is the outcome of recording one failure.
type Attempt struct {
	// LockedNow is true when this failure triggered the lockout.
	LockedNow bool
	// Remaining is the number of failures left before a lockout. Zero when
	// LockedNow is true.
	Remaining int
}

// Store is the contract shared by the in-memory and Redis lockout stores.
type Store interface {
	// Status checks whether id is locked; expired lockouts read as unlocked.
	Status(ctx context.Context, id string) (Status, error)

	// RecordFailure appends a failure at now and locks the identifier when
	// the window reaches the configured threshold.
	RecordFailure(ctx context.Context, id string) (Attempt, error)

	// ClearAttempts drops the failure window for id. The episode counter is
	// deliberately left alone.
	ClearAttempts(ctx context.Context, id string) error
}
