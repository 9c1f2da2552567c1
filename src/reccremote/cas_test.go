package reccremote

import (
	"context"
	"net"
	"testing"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/merkle"
)

type fakeCAS struct {
	repb.UnimplementedContentAddressableStorageServer
	present map[string]bool
	uploads map[string][]byte
}

func (f *fakeCAS) FindMissingBlobs(ctx context.Context, req *repb.FindMissingBlobsRequest) (*repb.FindMissingBlobsResponse, error) {
	resp := &repb.FindMissingBlobsResponse{}
	for _, d := range req.GetBlobDigests() {
		if !f.present[d.GetHash()] {
			resp.MissingBlobDigests = append(resp.MissingBlobDigests, d)
		}
	}
	return resp, nil
}

func (f *fakeCAS) BatchUpdateBlobs(ctx context.Context, req *repb.BatchUpdateBlobsRequest) (*repb.BatchUpdateBlobsResponse, error) {
	resp := &repb.BatchUpdateBlobsResponse{}
	for _, r := range req.GetRequests() {
		f.uploads[r.GetDigest().GetHash()] = r.GetData()
		f.present[r.GetDigest().GetHash()] = true
		resp.Responses = append(resp.Responses, &repb.BatchUpdateBlobsResponse_Response{
			Digest: r.GetDigest(),
			Status: &statusOK,
		})
	}
	return resp, nil
}

type fakeAC struct {
	repb.UnimplementedActionCacheServer
	results map[string]*repb.ActionResult
}

func dialBufconn(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFindMissingBlobs(t *testing.T) {
	cas := &fakeCAS{present: map[string]bool{}, uploads: map[string][]byte{}}
	conn := dialBufconn(t, func(s *grpc.Server) { repb.RegisterContentAddressableStorageServer(s, cas) })

	c := &Client{cas: repb.NewContentAddressableStorageClient(conn), retry: testRetryOpts()}
	d, err := digest.ForBytes(digest.SHA256, []byte("hello"))
	require.NoError(t, err)

	missing, err := c.FindMissingBlobs(context.Background(), []digest.Digest{d})
	require.NoError(t, err)
	assert.Len(t, missing, 1)

	cas.present[d.Hash] = true
	missing, err = c.FindMissingBlobs(context.Background(), []digest.Digest{d})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestUploadBlobsThenFindMissingIsEmpty(t *testing.T) {
	cas := &fakeCAS{present: map[string]bool{}, uploads: map[string][]byte{}}
	conn := dialBufconn(t, func(s *grpc.Server) { repb.RegisterContentAddressableStorageServer(s, cas) })

	c := &Client{cas: repb.NewContentAddressableStorageClient(conn), retry: testRetryOpts(), batchCap: defaultBatchCapBytes}
	d, err := digest.ForBytes(digest.SHA256, []byte("content"))
	require.NoError(t, err)

	blobs := merkle.BlobMap{d: []byte("content")}
	require.NoError(t, c.UploadBlobs(context.Background(), blobs))
	assert.Equal(t, []byte("content"), cas.uploads[d.Hash])

	missing, err := c.FindMissingBlobs(context.Background(), []digest.Digest{d})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func (f *fakeAC) GetActionResult(ctx context.Context, req *repb.GetActionResultRequest) (*repb.ActionResult, error) {
	r, ok := f.results[req.GetActionDigest().GetHash()]
	if !ok {
		return nil, notFoundErr()
	}
	return r, nil
}

func TestProbeActionCacheHitAndMiss(t *testing.T) {
	ac := &fakeAC{results: map[string]*repb.ActionResult{}}
	conn := dialBufconn(t, func(s *grpc.Server) { repb.RegisterActionCacheServer(s, ac) })
	c := &Client{ac: repb.NewActionCacheClient(conn), retry: testRetryOpts()}

	d, err := digest.ForBytes(digest.SHA256, []byte("action"))
	require.NoError(t, err)

	present, _, err := c.ProbeActionCache(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, present)

	ac.results[d.Hash] = &repb.ActionResult{ExitCode: 0}
	present, result, err := c.ProbeActionCache(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, present)
	assert.NotNil(t, result)
}
