package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// sqlite primary result codes that indicate another writer held the lock.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// isRetriable reports whether err is a transient sqlite lock conflict.
// The driver's *sqlite.Error exposes the extended result code; the low byte
// is the primary code.
func isRetriable(err error) bool {
	var coded interface{ Code() int }
	if !errors.As(err, &coded) {
		return false
	}
	switch coded.Code() & 0xff {
	case sqliteBusy, sqliteLocked:
		return true
	default:
		return false
	}
}

// WithRetry executes fn, retrying up to maxRetries times on lock conflicts
// that outlast busy_timeout. Retries use jittered exponential backoff
// starting at baseDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}
