package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-build/recc/src/digest"
)

func record(t *testing.T, content string) digest.FileRecord {
	d, err := digest.ForBytes(digest.SHA256, []byte(content))
	require.NoError(t, err)
	return digest.FileRecord{Digest: d, Content: []byte(content), Basename: "x"}
}

func TestDigestOrderIndependent(t *testing.T) {
	a := New()
	a.Insert("dir/a.c", record(t, "A"))
	a.Insert("dir/b.c", record(t, "B"))
	a.Insert("c.c", record(t, "C"))

	b := New()
	b.Insert("c.c", record(t, "C"))
	b.Insert("dir/b.c", record(t, "B"))
	b.Insert("dir/a.c", record(t, "A"))

	da, err := a.Digest(digest.SHA256, BlobMap{})
	require.NoError(t, err)
	db, err := b.Digest(digest.SHA256, BlobMap{})
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestDigestEmptyTree(t *testing.T) {
	d1, err := New().Digest(digest.SHA256, BlobMap{})
	require.NoError(t, err)
	d2, err := New().Digest(digest.SHA256, BlobMap{})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestDigestPopulatesBlobMap(t *testing.T) {
	tr := New()
	tr.Insert("a.c", record(t, "content"))
	blobs := BlobMap{}
	root, err := tr.Digest(digest.SHA256, blobs)
	require.NoError(t, err)
	assert.Contains(t, blobs, root)
	fileDigest, err := digest.ForBytes(digest.SHA256, []byte("content"))
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), blobs[fileDigest])
}
