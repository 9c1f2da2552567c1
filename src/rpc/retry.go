// Package rpc provides the retrying-call primitive every REAPI client
// method in src/reccremote is built on: exponential backoff around a
// single RPC invocation, with prompt abandonment on cancellation.
package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Failed is raised when an RPC exhausts its retry budget. Code and Message
// come from the last attempt's gRPC status.
type Failed struct {
	Code    codes.Code
	Message string
}

func (e *Failed) Error() string {
	return fmt.Sprintf("rpc: failed after retries: %s: %s", e.Code, e.Message)
}

// Call is a single RPC invocation, scoped to the context it is given. Each
// retry attempt constructs a fresh Call-scoped context (headers, deadline,
// cancellation token), never reusing a previous attempt's context.
type Call func(ctx context.Context) error

// Options configures Retry's backoff policy.
type Options struct {
	// BaseDelay is multiplied by 2^attempt between retries.
	BaseDelay time.Duration
	// RetryLimit is the number of additional attempts after the first.
	RetryLimit int
}

// Retry invokes call, and on a non-OK status sleeps BaseDelay*2^attempt and
// retries, up to RetryLimit additional attempts. Cancellation of ctx,
// whether before a call or during the backoff sleep, aborts promptly. On
// final failure, *Failed is returned carrying the last attempt's status.
func Retry(ctx context.Context, opts Options, call Call) error {
	var lastErr error
	for attempt := 0; attempt <= opts.RetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		callCtx, cancel := context.WithCancel(ctx)
		lastErr = call(callCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == opts.RetryLimit {
			break
		}
		delay := opts.BaseDelay * time.Duration(1<<uint(attempt))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	st, _ := grpcstatus.FromError(lastErr)
	return &Failed{Code: st.Code(), Message: st.Message()}
}
