package reccremote

import (
	"context"
	"fmt"
	"io"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	bsgrpc "google.golang.org/genproto/googleapis/bytestream"
	"google.golang.org/protobuf/proto"

	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/merkle"
	"github.com/outpost-build/recc/src/rpc"
)

// NegotiateCapabilities fetches the server's cache capabilities and lowers
// the client's batch cap if the server advertises a smaller one. It fails
// with *UnsupportedDigestFunction if c's configured digest function isn't
// in the server's supported set.
func (c *Client) NegotiateCapabilities(ctx context.Context) error {
	var caps *repb.ServerCapabilities
	err := rpc.Retry(ctx, c.retry, func(ctx context.Context) error {
		resp, err := c.capabilities.GetCapabilities(ctx, &repb.GetCapabilitiesRequest{InstanceName: c.instance})
		if err != nil {
			return err
		}
		caps = resp
		return nil
	})
	if err != nil {
		return err
	}

	cache := caps.GetCacheCapabilities()
	if cache == nil {
		return nil
	}
	if max := cache.GetMaxBatchTotalSizeBytes(); max > 0 && max < c.batchCap {
		c.batchCap = max
	}
	want := c.digestFunction.Proto()
	supported := false
	for _, fn := range cache.GetDigestFunctions() {
		if fn == want {
			supported = true
			break
		}
	}
	if !supported {
		return &UnsupportedDigestFunction{Name: string(c.digestFunction)}
	}
	return nil
}

// FindMissingBlobs chunks digests into requests of at most 16384 entries
// and returns the union of digests the server reports missing.
func (c *Client) FindMissingBlobs(ctx context.Context, digests []digest.Digest) ([]digest.Digest, error) {
	var missing []digest.Digest
	for start := 0; start < len(digests); start += maxFindMissingBlobsItems {
		end := start + maxFindMissingBlobsItems
		if end > len(digests) {
			end = len(digests)
		}
		chunk := digests[start:end]

		req := &repb.FindMissingBlobsRequest{InstanceName: c.instance}
		for _, d := range chunk {
			req.BlobDigests = append(req.BlobDigests, d.Proto())
		}

		var resp *repb.FindMissingBlobsResponse
		err := rpc.Retry(ctx, c.retry, func(ctx context.Context) error {
			r, err := c.cas.FindMissingBlobs(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, pb := range resp.GetMissingBlobDigests() {
			missing = append(missing, digest.FromProto(pb))
		}
	}
	return missing, nil
}

// UploadBlobs uploads every blob in blobs that the server doesn't already
// have, batching small blobs into BatchUpdateBlobs calls bounded by the
// (possibly server-lowered) batch cap and streaming anything larger via
// ByteStream.
func (c *Client) UploadBlobs(ctx context.Context, blobs merkle.BlobMap) error {
	keys := make([]digest.Digest, 0, len(blobs))
	for d := range blobs {
		keys = append(keys, d)
	}
	missing, err := c.FindMissingBlobs(ctx, keys)
	if err != nil {
		return err
	}

	var batch []*repb.BatchUpdateBlobsRequest_Request
	var batchSize int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		req := &repb.BatchUpdateBlobsRequest{InstanceName: c.instance, Requests: batch}
		var resp *repb.BatchUpdateBlobsResponse
		err := rpc.Retry(ctx, c.retry, func(ctx context.Context) error {
			r, err := c.cas.BatchUpdateBlobs(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return err
		}
		for _, r := range resp.GetResponses() {
			if r.GetStatus().GetCode() != 0 {
				return fmt.Errorf("reccremote: batch upload of %s/%d failed: %s",
					r.GetDigest().GetHash(), r.GetDigest().GetSizeBytes(), r.GetStatus().GetMessage())
			}
		}
		batch = nil
		batchSize = 0
		return nil
	}

	for _, d := range missing {
		content, ok := blobs[d]
		if !ok {
			continue
		}
		if d.Size > c.batchCap {
			if err := flush(); err != nil {
				return err
			}
			if err := c.streamUpload(ctx, d, content); err != nil {
				return err
			}
			continue
		}
		if batchSize+d.Size > c.batchCap {
			if err := flush(); err != nil {
				return err
			}
		}
		batch = append(batch, &repb.BatchUpdateBlobsRequest_Request{
			Digest: d.Proto(),
			Data:   content,
		})
		batchSize += d.Size
	}
	return flush()
}

// streamUpload uploads a single blob via ByteStream.Write, chunked at
// byteStreamChunkBytes, and verifies the server-committed size matches.
func (c *Client) streamUpload(ctx context.Context, d digest.Digest, content []byte) error {
	var short *UploadShort
	err := rpc.Retry(ctx, c.retry, func(ctx context.Context) error {
		short = nil
		resourceName, err := c.uploadResourceName(d)
		if err != nil {
			return err
		}
		stream, err := c.bytestream.Write(ctx)
		if err != nil {
			return err
		}
		var offset int64
		for offset < int64(len(content)) || len(content) == 0 {
			end := offset + byteStreamChunkBytes
			if end > int64(len(content)) {
				end = int64(len(content))
			}
			finish := end == int64(len(content))
			req := &bsgrpc.WriteRequest{
				WriteOffset: offset,
				Data:        content[offset:end],
				FinishWrite: finish,
			}
			if offset == 0 {
				req.ResourceName = resourceName
			}
			if err := stream.Send(req); err != nil {
				return err
			}
			offset = end
			if finish {
				break
			}
		}
		resp, err := stream.CloseAndRecv()
		if err != nil {
			return err
		}
		if resp.GetCommittedSize() != int64(len(content)) {
			short = &UploadShort{Want: int64(len(content)), Got: resp.GetCommittedSize()}
			return short
		}
		return nil
	})
	if short != nil {
		// Return the typed error rather than the *rpc.Failed Retry wraps it in.
		return short
	}
	return err
}

// DownloadBlob fetches a single blob by digest via ByteStream.Read.
func (c *Client) DownloadBlob(ctx context.Context, d digest.Digest) ([]byte, error) {
	var data []byte
	err := rpc.Retry(ctx, c.retry, func(ctx context.Context) error {
		data = nil
		stream, err := c.bytestream.Read(ctx, &bsgrpc.ReadRequest{ResourceName: c.downloadResourceName(d)})
		if err != nil {
			return err
		}
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			data = append(data, chunk.GetData()...)
		}
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// FetchMessage downloads d and unmarshals it as msg, failing with
// *ParseFailed if the bytes don't decode.
func (c *Client) FetchMessage(ctx context.Context, d digest.Digest, msg proto.Message) error {
	data, err := c.DownloadBlob(ctx, d)
	if err != nil {
		return err
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return &ParseFailed{Digest: d.String(), Cause: err}
	}
	return nil
}
