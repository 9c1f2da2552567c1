package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Options{BaseDelay: time.Millisecond, RetryLimit: 3}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Options{BaseDelay: time.Millisecond, RetryLimit: 3}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return grpcstatus.Error(codes.Unavailable, "try again")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsLimit(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), Options{BaseDelay: time.Millisecond, RetryLimit: 2}, func(ctx context.Context) error {
		calls++
		return grpcstatus.Error(codes.Internal, "boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // first attempt + 2 retries
	var failed *Failed
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, codes.Internal, failed.Code)
}

func TestRetryAbortsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, Options{BaseDelay: time.Second, RetryLimit: 5}, func(ctx context.Context) error {
		calls++
		return grpcstatus.Error(codes.Unavailable, "down")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
