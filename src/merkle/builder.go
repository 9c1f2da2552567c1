package merkle

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/reccpath"
)

// Logger is the minimal logging surface the builder needs; satisfied by
// gopkg.in/op/go-logging.v1's *Logger (src/cli/logging).
type Logger interface {
	Warningf(format string, args ...interface{})
}

// BuildOptions configures a single Build call.
type BuildOptions struct {
	// WorkingDir is the directory every input path in Paths is resolved
	// relative to, and is also inserted as an (at minimum empty)
	// directory in the resulting tree so a remote worker can chdir into
	// it.
	WorkingDir string
	// ExcludePrefixes lists absolute path prefixes to reject (logged,
	// not fatal).
	ExcludePrefixes []string
	Function        digest.Function
	// MaxThreads is the configured worker cap; -1 means "all cores".
	MaxThreads int
	UseXattrCache bool
	Logger        Logger
}

// poolSize implements the worker-pool sizing formula: 1 worker for small input
// sets, otherwise min(configured-max, available-cores).
func poolSize(n, maxThreads int) int {
	if n < 50 {
		return 1
	}
	cores := runtime.NumCPU()
	if maxThreads < 0 || maxThreads > cores {
		return cores
	}
	if maxThreads == 0 {
		return 1
	}
	return maxThreads
}

type nopLogger struct{}

func (nopLogger) Warningf(string, ...interface{}) {}

// Build reads and hashes every path in paths (interpreted relative to
// opts.WorkingDir when not already absolute), inserts each into a fresh
// Tree under a bounded worker pool, and returns the tree together with its
// root digest and accumulated blob map. Unreadable or special files are
// skipped with a log line rather than failing the build
// (UnreadableFile).
func Build(ctx context.Context, paths []string, opts BuildOptions) (*Tree, digest.Digest, BlobMap, error) {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	tree := New()
	tree.InsertEmptyDir(opts.WorkingDir)

	workers := poolSize(len(paths), opts.MaxThreads)
	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	var logMu sync.Mutex

	for _, raw := range paths {
		raw := raw
		abs := reccpath.MakeAbsolute(raw, opts.WorkingDir)
		excluded := false
		for _, prefix := range opts.ExcludePrefixes {
			if reccpath.HasPrefix(abs, prefix) {
				excluded = true
				break
			}
		}
		if excluded {
			logMu.Lock()
			logger.Warningf("merkle: excluding %s (matches excluded prefix)", abs)
			logMu.Unlock()
			continue
		}

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			rec, err := digest.ForFile(opts.Function, abs, opts.UseXattrCache)
			if err != nil {
				logMu.Lock()
				logger.Warningf("merkle: skipping unreadable file %s: %v", abs, err)
				logMu.Unlock()
				return nil
			}
			tree.Insert(relativeInputRootPath(abs, opts.WorkingDir), rec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, digest.Digest{}, nil, fmt.Errorf("merkle: build aborted: %w", err)
	}

	blobs := BlobMap{}
	root, err := tree.Digest(opts.Function, blobs)
	if err != nil {
		return nil, digest.Digest{}, nil, err
	}
	return tree, root, blobs, nil
}

// relativeInputRootPath places abs into the input root at the path it
// should occupy relative to the remote working directory: files under the
// working directory keep their relative position, files outside it (e.g.
// system headers reached via ".." or an absolute include path) are rooted
// at their absolute path with the leading slash stripped, so every input
// has a unique, collision-free slot in the tree.
func relativeInputRootPath(abs, workingDir string) string {
	rel := reccpath.MakeRelative(abs, workingDir, "/")
	if len(rel) > 0 && rel[0] != '.' && rel[0] != '/' {
		return rel
	}
	return abs[1:]
}
