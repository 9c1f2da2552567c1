package reccremote

import (
	"time"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/google/uuid"
)

// requestMetadataHeader is the gRPC metadata key REAPI servers look for a
// serialized, base64-less binary build.bazel.remote.execution.v2.RequestMetadata
// message under.
const requestMetadataHeader = "build.bazel.remote.execution.v2.requestmetadata-bin"

// newRequestMetadata builds a RequestMetadata proto identifying this tool
// and a fresh correlated-invocations-id for the process
// "Request metadata header". It is attached to every RPC this client
// makes so server-side logs can correlate all calls from one invocation.
func newRequestMetadata(toolName, toolVersion string) *repb.RequestMetadata {
	id, err := uuid.NewRandom()
	correlatedID := ""
	if err == nil {
		correlatedID = id.String()
	}
	return &repb.RequestMetadata{
		ToolDetails: &repb.ToolDetails{
			ToolName:    toolName,
			ToolVersion: toolVersion,
		},
		CorrelatedInvocationsId: correlatedID,
	}
}

func retryBaseDelay(millis int64) time.Duration {
	if millis <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(millis) * time.Millisecond
}
