package digest

import (
	"os"
	"path/filepath"
	"testing"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForBytesSHA256(t *testing.T) {
	d, err := ForBytes(SHA256, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", d.Hash)
}

func TestForBytesEmptyDefaultsToSHA256(t *testing.T) {
	a, err := ForBytes(SHA256, []byte("x"))
	require.NoError(t, err)
	b, err := ForBytes("", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDigestString(t *testing.T) {
	d := Digest{Hash: "abc", Size: 3}
	assert.Equal(t, "abc/3", d.String())
}

func TestForFileNoCache(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.c")
	require.NoError(t, os.WriteFile(p, []byte("int main(){}"), 0o644))

	rec, err := ForFile(SHA256, p, false)
	require.NoError(t, err)
	assert.Equal(t, "a.c", rec.Basename)
	assert.False(t, rec.Executable)
	assert.Equal(t, []byte("int main(){}"), rec.Content)

	want, err := ForBytes(SHA256, rec.Content)
	require.NoError(t, err)
	assert.Equal(t, want, rec.Digest)
}

func TestForFileExecutableBit(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755))

	rec, err := ForFile(SHA256, p, false)
	require.NoError(t, err)
	assert.True(t, rec.Executable)
}

func TestForMessageDeterministic(t *testing.T) {
	// The same message digested twice must produce identical digests
	// regardless of call order, matching the Merkle invariant this package
	// underpins.
	msg := &repb.Digest{Hash: "abc", SizeBytes: 3}
	a, err := ForMessage(SHA256, msg)
	require.NoError(t, err)
	b, err := ForMessage(SHA256, msg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
