package reccremote

import (
	"context"
	"sync"
	"testing"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	longrunning "google.golang.org/genproto/googleapis/longrunning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/outpost-build/recc/src/digest"
)

type fakeExecution struct {
	repb.UnimplementedExecutionServer
	result *repb.ActionResult
}

func (f *fakeExecution) Execute(req *repb.ExecuteRequest, stream repb.Execution_ExecuteServer) error {
	resp := &repb.ExecuteResponse{Result: f.result}
	any, err := anypb.New(resp)
	if err != nil {
		return err
	}
	return stream.Send(&longrunning.Operation{Name: "op-1", Done: true, Result: &longrunning.Operation_Response{Response: any}})
}

func TestExecuteReturnsActionResult(t *testing.T) {
	exec := &fakeExecution{result: &repb.ActionResult{ExitCode: 0}}
	conn := dialBufconn(t, func(s *grpc.Server) { repb.RegisterExecutionServer(s, exec) })

	c := &Client{exec: repb.NewExecutionClient(conn), logger: nopLogger{}, requestMeta: newRequestMetadata("recc", "test")}
	d, err := digest.ForBytes(digest.SHA256, []byte("action"))
	require.NoError(t, err)

	result, err := c.Execute(context.Background(), d, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), result.GetExitCode())
}

func TestCancelFlagTriggerIsIdempotent(t *testing.T) {
	f := NewCancelFlag()
	assert.False(t, f.isTriggered())
	f.Trigger()
	f.Trigger()
	assert.True(t, f.isTriggered())
}

// blockingExecution streams a single non-done Operation, signals sent, then
// blocks until its stream's context is cancelled, simulating a build the
// server hasn't finished yet.
type blockingExecution struct {
	repb.UnimplementedExecutionServer
	sent chan struct{}
}

func (f *blockingExecution) Execute(req *repb.ExecuteRequest, stream repb.Execution_ExecuteServer) error {
	if err := stream.Send(&longrunning.Operation{Name: "op-1", Done: false}); err != nil {
		return err
	}
	close(f.sent)
	<-stream.Context().Done()
	return stream.Context().Err()
}

type fakeOperations struct {
	longrunning.UnimplementedOperationsServer
	mu    sync.Mutex
	calls []string
}

func (f *fakeOperations) CancelOperation(ctx context.Context, req *longrunning.CancelOperationRequest) (*emptypb.Empty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.GetName())
	return &emptypb.Empty{}, nil
}

func TestExecuteCancellationSendsCancelOperationOnce(t *testing.T) {
	exec := &blockingExecution{sent: make(chan struct{})}
	ops := &fakeOperations{}
	conn := dialBufconn(t, func(s *grpc.Server) {
		repb.RegisterExecutionServer(s, exec)
		longrunning.RegisterOperationsServer(s, ops)
	})

	c := &Client{
		exec:        repb.NewExecutionClient(conn),
		operations:  longrunning.NewOperationsClient(conn),
		logger:      nopLogger{},
		requestMeta: newRequestMetadata("recc", "test"),
	}
	d, err := digest.ForBytes(digest.SHA256, []byte("action"))
	require.NoError(t, err)

	cancelFlag := NewCancelFlag()
	type outcome struct {
		result *repb.ActionResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := c.Execute(context.Background(), d, false, cancelFlag)
		resultCh <- outcome{result, err}
	}()

	<-exec.sent
	cancelFlag.Trigger()
	out := <-resultCh

	var cancelled *Cancelled
	require.ErrorAs(t, out.err, &cancelled)
	assert.Equal(t, int32(cancelledExitCode), out.result.GetExitCode())

	ops.mu.Lock()
	defer ops.mu.Unlock()
	assert.Equal(t, []string{"op-1"}, ops.calls)
}
