package reccremote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/hashicorp/go-multierror"
	longrunning "google.golang.org/genproto/googleapis/longrunning"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/rpc"
)

// cancelledExitCode is the shell convention for a SIGINT-terminated
// process, synthesized when Execute is cancelled.
const cancelledExitCode = 130

// ProbeActionCache calls GetActionResult through the retry wrapper. It
// returns (false, nil, nil) on NOT_FOUND, and surfaces any other non-OK
// status as a *rpc.Failed.
func (c *Client) ProbeActionCache(ctx context.Context, actionDigest digest.Digest) (present bool, result *repb.ActionResult, err error) {
	err = rpc.Retry(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.ac.GetActionResult(ctx, &repb.GetActionResultRequest{
			InstanceName: c.instance,
			ActionDigest: actionDigest.Proto(),
		})
		if grpcstatus.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		result = resp
		present = true
		return nil
	})
	return present, result, err
}

// CancelFlag is a handle an external signal handler can set to request
// that an in-flight Execute call abandon its stream, matching the single
// process-wide "cancel requested" flag. It is backed by a channel rather
// than a polled atomic so the Execute read loop can react to it
// immediately instead of only between Recv() calls — the same observable
// contract (prompt abandonment, CancelOperation sent once, exit code 130),
// expressed with Go's native cancellation idiom.
type CancelFlag struct {
	ch        chan struct{}
	triggered int32
}

// NewCancelFlag returns a fresh, untriggered flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{ch: make(chan struct{})}
}

// Trigger requests cancellation. Safe to call multiple times or
// concurrently; only the first call has an effect.
func (f *CancelFlag) Trigger() {
	if atomic.CompareAndSwapInt32(&f.triggered, 0, 1) {
		close(f.ch)
	}
}

// Execute submits an ExecuteRequest for actionDigest, streams Operation
// progress until one reports done, and returns the resulting ActionResult.
// If cancel is triggered while the stream is live, the stream is abandoned,
// a single CancelOperation RPC is issued on a fresh context, and a
// synthesized ActionResult with exit code 130 is returned alongside
// *Cancelled.
func (c *Client) Execute(ctx context.Context, actionDigest digest.Digest, skipCacheLookup bool, cancel *CancelFlag) (*repb.ActionResult, error) {
	streamCtx, cancelStream := context.WithCancel(withActionID(ctx, actionDigest.String()))
	defer cancelStream()

	if cancel != nil {
		go func() {
			select {
			case <-cancel.ch:
				cancelStream()
			case <-streamCtx.Done():
			}
		}()
	}

	stream, err := c.exec.Execute(streamCtx, &repb.ExecuteRequest{
		InstanceName:    c.instance,
		ActionDigest:    actionDigest.Proto(),
		SkipCacheLookup: skipCacheLookup,
	})
	if err != nil {
		return nil, err
	}

	var lastOp *longrunning.Operation
	for {
		op, err := stream.Recv()
		if err != nil {
			if cancel != nil && cancel.isTriggered() {
				return c.handleCancellation(lastOp)
			}
			if err == io.EOF {
				break
			}
			return nil, err
		}
		lastOp = op
		if op.GetDone() {
			break
		}
	}

	if cancel != nil && cancel.isTriggered() {
		return c.handleCancellation(lastOp)
	}
	return c.interpretOperation(lastOp)
}

func (f *CancelFlag) isTriggered() bool {
	return atomic.LoadInt32(&f.triggered) != 0
}

// handleCancellation issues CancelOperation on a fresh context (the
// stream's own context is already cancelled and cannot be reused for a
// concurrent RPC) and returns the synthesized cancelled result.
func (c *Client) handleCancellation(lastOp *longrunning.Operation) (*repb.ActionResult, error) {
	if lastOp != nil && lastOp.GetName() != "" {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.operations.CancelOperation(cancelCtx, &longrunning.CancelOperationRequest{Name: lastOp.GetName()}); err != nil {
			c.logger.Warningf("reccremote: CancelOperation failed: %v", err)
		}
	}
	return &repb.ActionResult{ExitCode: cancelledExitCode}, &Cancelled{}
}

// interpretOperation unpacks a completed Operation's response as an
// ExecuteResponse and returns its ActionResult.
func (c *Client) interpretOperation(op *longrunning.Operation) (*repb.ActionResult, error) {
	if op == nil {
		return nil, fmt.Errorf("reccremote: execute stream closed with no operation")
	}
	if opErr := op.GetError(); opErr != nil {
		return nil, grpcstatus.Error(codes.Code(opErr.Code), opErr.Message)
	}
	resp := &repb.ExecuteResponse{}
	if err := op.GetResponse().UnmarshalTo(resp); err != nil {
		return nil, &ParseFailed{Digest: op.GetName(), Cause: err}
	}
	if st := resp.GetStatus(); st != nil && st.GetCode() != 0 {
		return nil, grpcstatus.Error(codes.Code(st.GetCode()), st.GetMessage())
	}
	return resp.GetResult(), nil
}

// MaterializeOutputs writes every output file and output directory named
// in result to disk under root, and returns stdout/stderr bytes for the
// caller to print. Writes are atomic: each file is written to a temporary
// path in the same directory, then renamed into place. Every output
// is attempted even if an earlier one fails, so a caller sees the full set
// of write failures (e.g. one bad permission among several outputs) rather
// than just the first.
func (c *Client) MaterializeOutputs(ctx context.Context, result *repb.ActionResult, root string) (stdout, stderr []byte, err error) {
	var errs *multierror.Error
	for _, f := range result.GetOutputFiles() {
		if err := c.materializeFile(ctx, root, f.GetPath(), digest.FromProto(f.GetDigest()), f.GetContent(), f.GetIsExecutable()); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("writing output %s: %w", f.GetPath(), err))
		}
	}
	for _, d := range result.GetOutputDirectories() {
		if err := c.materializeDirectory(ctx, root, d); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("writing output directory %s: %w", d.GetPath(), err))
		}
	}
	if errs.ErrorOrNil() != nil {
		return nil, nil, fmt.Errorf("reccremote: %w", errs.ErrorOrNil())
	}

	stdout, err = c.fetchStream(ctx, result.GetStdoutRaw(), digest.FromProto(result.GetStdoutDigest()))
	if err != nil {
		return nil, nil, err
	}
	stderr, err = c.fetchStream(ctx, result.GetStderrRaw(), digest.FromProto(result.GetStderrDigest()))
	if err != nil {
		return nil, nil, err
	}
	return stdout, stderr, nil
}

func (c *Client) fetchStream(ctx context.Context, inline []byte, d digest.Digest) ([]byte, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	if d.IsEmpty() {
		return nil, nil
	}
	return c.DownloadBlob(ctx, d)
}

func (c *Client) materializeFile(ctx context.Context, root, relPath string, d digest.Digest, inline []byte, executable bool) error {
	content := inline
	if len(content) == 0 && !d.IsEmpty() {
		data, err := c.DownloadBlob(ctx, d)
		if err != nil {
			return err
		}
		content = data
	}
	dest := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".recc-out-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (c *Client) materializeDirectory(ctx context.Context, root string, out *repb.OutputDirectory) error {
	tree := &repb.Tree{}
	if err := c.FetchMessage(ctx, digest.FromProto(out.GetTreeDigest()), tree); err != nil {
		return err
	}
	byDigest := map[digest.Digest]*repb.Directory{}
	for _, d := range tree.GetChildren() {
		data, err := proto.Marshal(d)
		if err != nil {
			return err
		}
		key, err := digest.ForBytes(c.digestFunction, data)
		if err != nil {
			return err
		}
		byDigest[key] = d
	}
	return c.walkDirectory(ctx, root, out.GetPath(), tree.GetRoot(), byDigest)
}

func (c *Client) walkDirectory(ctx context.Context, root, relPath string, dir *repb.Directory, byDigest map[digest.Digest]*repb.Directory) error {
	for _, f := range dir.GetFiles() {
		p := filepath.Join(relPath, f.GetName())
		if err := c.materializeFile(ctx, root, p, digest.FromProto(f.GetDigest()), nil, f.GetIsExecutable()); err != nil {
			return err
		}
	}
	for _, sub := range dir.GetDirectories() {
		child, ok := byDigest[digest.FromProto(sub.GetDigest())]
		if !ok {
			return fmt.Errorf("reccremote: tree missing child directory %s", sub.GetName())
		}
		if err := c.walkDirectory(ctx, root, filepath.Join(relPath, sub.GetName()), child, byDigest); err != nil {
			return err
		}
	}
	return nil
}
