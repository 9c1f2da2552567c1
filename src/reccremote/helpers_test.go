package reccremote

import (
	"time"

	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/outpost-build/recc/src/rpc"
)

var statusOK = statuspb.Status{Code: 0}

func testRetryOpts() rpc.Options {
	return rpc.Options{BaseDelay: time.Millisecond, RetryLimit: 1}
}

func notFoundErr() error {
	return grpcstatus.Error(codes.NotFound, "not found")
}
