package port

import (
	"context"
	"time"
)

// RateLimitStore records timestamped attempts per identifier so callers can
// enforce sliding-window limits (request throttles, failed-code lockouts).
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	// ReserveAttempt trims the window, then records an attempt only while fewer
	// than limit remain, as one atomic step. It returns the count inside the
	// window afterwards and whether the attempt was recorded.
	ReserveAttempt(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (int, bool, error)
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
	Reset(ctx context.Context, identifier string) error
}
