// Package reccremote implements the REAPI v2 client protocol: a CAS client
// (FindMissingBlobs, batch/streamed upload and download, capability
// negotiation) and an action-cache-plus-execution client (cache probe,
// Execute with streamed progress, cancellation, and output materialization
// to disk). Every RPC except the Execute stream and CancelOperation goes
// through src/rpc's retrying wrapper.
package reccremote

import (
	"context"
	"fmt"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/google/uuid"
	bsgrpc "google.golang.org/genproto/googleapis/bytestream"
	longrunning "google.golang.org/genproto/googleapis/longrunning"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/rpc"
)

// Logger is the minimal logging surface the client needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warningf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})   {}
func (nopLogger) Warningf(string, ...interface{}) {}

// defaultBatchCapBytes is the client's default BatchUpdateBlobs/
// BatchReadBlobs payload ceiling, lowered if the server advertises a
// smaller one during capability negotiation.
const defaultBatchCapBytes = 2 << 20 // 2 MiB

// byteStreamChunkBytes is the fixed chunk size used for streamed upload
// and download, except for the final upload chunk.
const byteStreamChunkBytes = 1 << 20 // 1 MiB

// maxFindMissingBlobsItems bounds a single FindMissingBlobs request.
const maxFindMissingBlobsItems = 16384

// Config is the immutable, fully-resolved transport configuration a Client
// is built from. Endpoint fallback (cas falls back to ac falls back to
// server) is resolved by New.
type Config struct {
	ExecutionServer   string
	CASServer         string
	ActionCacheServer string
	Instance          string
	DigestFunction    digest.Function
	RetryLimit        int
	RetryDelayMillis  int64
	DialOptions       []grpc.DialOption
	Logger            Logger
	ToolName          string
	ToolVersion       string
}

// Client bundles the three REAPI service stubs this system talks to, plus
// the retry policy and instance name every call needs. Execution is
// implemented via composition over the same transport handle the CAS
// client uses, not inheritance.
type Client struct {
	instance       string
	digestFunction digest.Function
	batchCap       int64
	retry          rpc.Options
	logger         Logger
	requestMeta    *repb.RequestMetadata

	cas          repb.ContentAddressableStorageClient
	ac           repb.ActionCacheClient
	exec         repb.ExecutionClient
	capabilities repb.CapabilitiesClient
	bytestream   bsgrpc.ByteStreamClient
	operations   longrunning.OperationsClient

	conns []*grpc.ClientConn
}

// New dials the configured endpoints and returns a ready-to-use Client. It
// does not perform capability negotiation; call NegotiateCapabilities
// explicitly once, since negotiation is optional and only needed on first use.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	c := &Client{
		instance:       cfg.Instance,
		digestFunction: cfg.DigestFunction,
		batchCap:       defaultBatchCapBytes,
		retry:          rpc.Options{BaseDelay: retryBaseDelay(cfg.RetryDelayMillis), RetryLimit: cfg.RetryLimit},
		logger:         logger,
		requestMeta:    newRequestMetadata(cfg.ToolName, cfg.ToolVersion),
	}

	dialOpts := cfg.DialOptions
	if dialOpts == nil {
		dialOpts = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithChainUnaryInterceptor(grpc_middleware.ChainUnaryClient(
				c.requestMetadataUnaryInterceptor(),
				c.debugLogUnaryInterceptor(),
			)),
			grpc.WithChainStreamInterceptor(grpc_middleware.ChainStreamClient(
				c.requestMetadataStreamInterceptor(),
			)),
		}
	}

	dialed := map[string]*grpc.ClientConn{}
	dial := func(addr string) (*grpc.ClientConn, error) {
		if conn, ok := dialed[addr]; ok {
			return conn, nil
		}
		conn, err := grpc.DialContext(ctx, addr, dialOpts...)
		if err != nil {
			return nil, fmt.Errorf("reccremote: dialing %s: %w", addr, err)
		}
		dialed[addr] = conn
		return conn, nil
	}

	execConn, err := dial(cfg.ExecutionServer)
	if err != nil {
		return nil, err
	}
	casConn, err := dial(resolveEndpoint(cfg.CASServer, resolveEndpoint(cfg.ActionCacheServer, cfg.ExecutionServer)))
	if err != nil {
		return nil, err
	}
	acConn, err := dial(resolveEndpoint(cfg.ActionCacheServer, cfg.ExecutionServer))
	if err != nil {
		return nil, err
	}

	conns := make([]*grpc.ClientConn, 0, len(dialed))
	for _, c := range dialed {
		conns = append(conns, c)
	}

	c.cas = repb.NewContentAddressableStorageClient(casConn)
	c.ac = repb.NewActionCacheClient(acConn)
	c.exec = repb.NewExecutionClient(execConn)
	c.capabilities = repb.NewCapabilitiesClient(execConn)
	c.bytestream = bsgrpc.NewByteStreamClient(casConn)
	c.operations = longrunning.NewOperationsClient(execConn)
	c.conns = conns
	return c, nil
}

// Close tears down every dialed connection.
func (c *Client) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func resolveEndpoint(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

// uploadResourceName builds the byte-stream resource name for uploading d,
// "{instance}/uploads/{guid-v4}/blobs/{hex-hash}/{size}".
func (c *Client) uploadResourceName(d digest.Digest) (string, error) {
	guid, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/uploads/%s/blobs/%s", c.instance, guid.String(), d.String()), nil
}

// downloadResourceName builds the byte-stream resource name for
// downloading d: "{instance}/blobs/{hex-hash}/{size}".
func (c *Client) downloadResourceName(d digest.Digest) string {
	return fmt.Sprintf("%s/blobs/%s", c.instance, d.String())
}
