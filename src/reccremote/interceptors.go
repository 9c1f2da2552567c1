package reccremote

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

// ctxActionIDKey stashes the action digest a call is scoped to, so the
// request-metadata interceptor can tag the outgoing RequestMetadata header
// without every call site building it by hand.
type ctxActionIDKey struct{}

// withActionID records actionID on ctx for the request-metadata interceptor
// to pick up; calls made without it send an empty ActionId field.
func withActionID(ctx context.Context, actionID string) context.Context {
	return context.WithValue(ctx, ctxActionIDKey{}, actionID)
}

func actionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxActionIDKey{}).(string)
	return id
}

// requestMetadataUnaryInterceptor attaches c's RequestMetadata (tool name,
// correlated-invocations id, and the calling action's digest if set) to
// every unary RPC's outgoing metadata.
func (c *Client) requestMetadataUnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(c.attachRequestMetadata(ctx), method, req, reply, cc, opts...)
	}
}

// requestMetadataStreamInterceptor is the streaming-call equivalent, used
// for Execute's server-streamed operation feed and ByteStream's
// bidirectional/streamed RPCs.
func (c *Client) requestMetadataStreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(c.attachRequestMetadata(ctx), desc, cc, method, opts...)
	}
}

func (c *Client) attachRequestMetadata(ctx context.Context) context.Context {
	if c.requestMeta == nil {
		return ctx
	}
	md := *c.requestMeta
	md.ActionId = actionIDFromContext(ctx)
	data, err := proto.Marshal(&md)
	if err != nil {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, requestMetadataHeader, string(data))
}

// debugLogUnaryInterceptor logs every unary RPC's method name at debug
// level. src/rpc's retry wrapper does no logging of its own; since each
// attempt it makes is a separate invocation, this logs every attempt.
func (c *Client) debugLogUnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		c.logger.Debugf("reccremote: %s", method)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
