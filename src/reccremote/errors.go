package reccremote

import "fmt"

// UnsupportedDigestFunction is raised when the configured digest function
// is not in the server's advertised capability set.
type UnsupportedDigestFunction struct {
	Name string
}

func (e *UnsupportedDigestFunction) Error() string {
	return fmt.Sprintf("reccremote: server does not support digest function %s", e.Name)
}

// UploadShort is raised when a byte-stream upload's server-reported
// committed size doesn't match the blob's actual length.
type UploadShort struct {
	Want, Got int64
}

func (e *UploadShort) Error() string {
	return fmt.Sprintf("reccremote: upload short: committed %d of %d bytes", e.Got, e.Want)
}

// ParseFailed is raised when a fetched blob does not decode as the
// expected message type.
type ParseFailed struct {
	Digest string
	Cause  error
}

func (e *ParseFailed) Error() string {
	return fmt.Sprintf("reccremote: failed to parse blob %s: %v", e.Digest, e.Cause)
}

func (e *ParseFailed) Unwrap() error { return e.Cause }

// Cancelled is returned by Execute when SIGINT was observed while the
// Execute stream was live.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "reccremote: execution cancelled" }
