// Package merkle assembles a set of local files into a content-addressed
// directory tree (the remote "input root"): per-file digests, nested
// Directory messages, and a blob map the CAS client later uploads from.
package merkle

import (
	"sort"
	"strings"
	"sync"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"google.golang.org/protobuf/proto"

	"github.com/outpost-build/recc/src/digest"
)

// BlobMap accumulates digest -> serialized-bytes entries discovered while
// walking a Tree to its root digest: every Directory message along the
// way, plus the content of every file inserted into the Tree.
type BlobMap map[digest.Digest][]byte

// Tree is a nested directory value: a mapping from basename to file
// record, plus a mapping from basename to nested sub-tree. The same
// filesystem content always produces the same root digest regardless of
// insertion order, because child entries are sorted lexicographically at
// serialization time, not at insertion time.
type Tree struct {
	mu    sync.Mutex
	files map[string]digest.FileRecord
	dirs  map[string]*Tree
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{files: map[string]digest.FileRecord{}, dirs: map[string]*Tree{}}
}

// Insert records rec at path, creating intermediate directories as needed.
// path is "/"-relative to the tree's own root and must not be empty.
// Insert is safe for concurrent use; it is the single serialization point
// callers should route all worker-pool writes through.
func (t *Tree) Insert(path string, rec digest.FileRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node := t
	segs := splitPath(path)
	for _, seg := range segs[:len(segs)-1] {
		node = node.child(seg)
	}
	node.files[segs[len(segs)-1]] = rec
}

// InsertEmptyDir ensures path exists as a (possibly empty) directory, e.g.
// for the remote working directory so a worker can chdir into it even when
// no file lives there directly.
func (t *Tree) InsertEmptyDir(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node := t
	for _, seg := range splitPath(path) {
		node = node.child(seg)
	}
}

func (t *Tree) child(name string) *Tree {
	c, ok := t.dirs[name]
	if !ok {
		c = New()
		t.dirs[name] = c
	}
	return c
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Digest recursively serializes t into Directory messages under fn,
// recording each one (and every file's content) into blobs, and returns
// the root digest.
func (t *Tree) Digest(fn digest.Function, blobs BlobMap) (digest.Digest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.digestLocked(fn, blobs)
}

func (t *Tree) digestLocked(fn digest.Function, blobs BlobMap) (digest.Digest, error) {
	dir := &repb.Directory{}

	fileNames := make([]string, 0, len(t.files))
	for name := range t.files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)
	for _, name := range fileNames {
		rec := t.files[name]
		dir.Files = append(dir.Files, &repb.FileNode{
			Name:         name,
			Digest:       rec.Digest.Proto(),
			IsExecutable: rec.Executable,
		})
		blobs[rec.Digest] = rec.Content
	}

	dirNames := make([]string, 0, len(t.dirs))
	for name := range t.dirs {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)
	for _, name := range dirNames {
		childDigest, err := t.dirs[name].digestLocked(fn, blobs)
		if err != nil {
			return digest.Digest{}, err
		}
		dir.Directories = append(dir.Directories, &repb.DirectoryNode{
			Name:   name,
			Digest: childDigest.Proto(),
		})
	}

	d, err := digest.ForMessage(fn, dir)
	if err != nil {
		return digest.Digest{}, err
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(dir)
	if err != nil {
		return digest.Digest{}, err
	}
	blobs[d] = data
	return d, nil
}
