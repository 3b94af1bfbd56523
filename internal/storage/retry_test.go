package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedErr int

func (e codedErr) Error() string { return fmt.Sprintf("sqlite code %d", int(e)) }
func (e codedErr) Code() int     { return int(e) }

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(codedErr(sqliteBusy)))
	assert.True(t, isRetriable(fmt.Errorf("wrapped: %w", codedErr(sqliteLocked))))
	assert.True(t, isRetriable(codedErr(517)), "SQLITE_BUSY_SNAPSHOT is an extended busy code")
	assert.False(t, isRetriable(codedErr(19)), "constraint violations are permanent")
	assert.False(t, isRetriable(errors.New("plain")))
	assert.False(t, isRetriable(nil))
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := WithRetry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return codedErr(sqliteBusy)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = WithRetry(ctx, 2, time.Millisecond, func() error {
		calls++
		return codedErr(sqliteBusy)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus maxRetries")

	calls = 0
	err = WithRetry(ctx, 5, time.Millisecond, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
