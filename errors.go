package gatekeep

import "errors"

var (
	// ErrRateLimited is returned by [Limiter.Allow] when an identifier has
	// exhausted its sliding-window budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAccountLocked is returned by [Gate.AllowLogin] while a brute-force
	// lockout is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrUnknownLimiter is returned when a limiter name has no configuration.
	ErrUnknownLimiter = errors.New("unknown limiter")
)
