// Package action orchestrates the compiler-command parser, dependency
// resolver, and Merkle-tree builder to assemble a REAPI Action ready for
// an action-cache probe and, on a miss, execution — or decides that the
// invocation should run locally instead.
package action

import (
	"context"
	"fmt"
	"strings"

	repb "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"
	"github.com/karrick/godirwalk"
	"google.golang.org/protobuf/proto"

	"github.com/outpost-build/recc/src/compiler"
	"github.com/outpost-build/recc/src/deps"
	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/merkle"
	"github.com/outpost-build/recc/src/reccpath"
)

// Verdict, together with the *BadExecutable error, forms the explicit
// three-way result of assembly {Action | NoAction | BadExecutable}: the
// first two are Verdict values, the third is returned as an error.
type Verdict int

const (
	// ActionVerdict means Assembly carries a usable Action.
	ActionVerdict Verdict = iota
	// NoActionVerdict means the caller should exec the original argv
	// locally: either this wasn't a compiler command, a declared
	// product path was absolute, or the dependency probe failed.
	NoActionVerdict
)

// BadExecutable is returned (not carried as a Verdict) when argv[0] names
// no path at all: this is fatal, not a
// local-fallback condition.
type BadExecutable struct {
	Argv0 string
}

func (e *BadExecutable) Error() string {
	return fmt.Sprintf("action: argv[0] %q is not a path", e.Argv0)
}

// Config carries the ambient/domain configuration Assemble needs, built
// once at startup and threaded through explicitly.
type Config struct {
	Function        digest.Function
	WorkingDirPrefix string
	RemoteEnv       map[string]string
	RemotePlatform  map[string]string
	ActionUncacheable bool
	SkipCacheLookup   bool
	ForceRemote       bool

	DepsOverride          []string
	DepsDirectoryOverride string
	OutputFilesOverride   []string
	DepsEnvOverlay        map[string]string
	DepsDialect           deps.Dialect
	DepsFilter            deps.FilterOptions
	MaxThreads            int
	ExcludePrefixes       []string
	UseXattrCache         bool
	Logger                merkle.Logger
}

// Assembly is the outcome of Assemble.
type Assembly struct {
	Verdict         Verdict
	Action          *repb.Action
	ActionDigest    digest.Digest
	Command         *repb.Command
	CommandDigest   digest.Digest
	InputRootDigest digest.Digest
	Blobs           merkle.BlobMap
	WorkingDir      string
}

// Assemble builds an Action for pc as invoked from cwd, or decides that
// local execution is the right response.
func Assemble(ctx context.Context, pc *compiler.ParsedCommand, cwd string, cfg Config) (*Assembly, error) {
	if !pc.IsCompiler && !cfg.ForceRemote {
		return &Assembly{Verdict: NoActionVerdict}, nil
	}
	if len(pc.RemoteArgv) == 0 || !strings.Contains(pc.RemoteArgv[0], "/") {
		if len(pc.RemoteArgv) > 0 {
			return nil, &BadExecutable{Argv0: pc.RemoteArgv[0]}
		}
		return nil, &BadExecutable{}
	}

	var (
		inputPaths []string
		products   map[string]bool
		workingDir string
		tree       *merkle.Tree
		rootDigest digest.Digest
		blobs      merkle.BlobMap
		err        error
	)

	if cfg.DepsDirectoryOverride != "" {
		tree, rootDigest, blobs, err = snapshotDirectory(cfg.DepsDirectoryOverride, cfg.Function, cfg.UseXattrCache)
		if err != nil {
			return nil, err
		}
		workingDir = cfg.WorkingDirPrefix
		products = productSet(cfg.OutputFilesOverride, pc.Products)
	} else {
		resolveOpts := deps.ResolveOptions{
			Dir:         cwd,
			EnvOverlay:  cfg.DepsEnvOverlay,
			Dialect:     cfg.DepsDialect,
			Filter:      cfg.DepsFilter,
			AIXDepsFile: pc.AIXDepsFile,
		}
		result, rerr := deps.Resolve(ctx, pc.DepsArgv, resolveOpts)
		if rerr != nil {
			if _, ok := rerr.(*deps.SubprocessFailed); ok {
				return &Assembly{Verdict: NoActionVerdict}, nil
			}
			return nil, rerr
		}

		inputPaths = unionStrings(result.Dependencies, cfg.DepsOverride)
		if len(cfg.OutputFilesOverride) > 0 {
			products = productSet(cfg.OutputFilesOverride, nil)
		} else {
			products = unionSets(result.Products, pc.Products)
		}

		for p := range products {
			if strings.HasPrefix(p, "/") {
				return &Assembly{Verdict: NoActionVerdict}, nil
			}
		}

		workingDir, err = commonAncestorPath(append(append([]string{}, inputPaths...), setKeys(products)...), cwd)
		if err != nil {
			return nil, err
		}

		absPaths := make([]string, len(inputPaths))
		for i, p := range inputPaths {
			absPaths[i] = reccpath.MakeAbsolute(p, cwd)
		}
		tree, rootDigest, blobs, err = merkle.Build(ctx, absPaths, merkle.BuildOptions{
			WorkingDir:      workingDir,
			ExcludePrefixes: cfg.ExcludePrefixes,
			Function:        cfg.Function,
			MaxThreads:      cfg.MaxThreads,
			UseXattrCache:   cfg.UseXattrCache,
			Logger:          cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
	}
	_ = tree

	outputPaths := make([]string, 0, len(products))
	for p := range products {
		if cfg.DepsDirectoryOverride != "" {
			outputPaths = append(outputPaths, p)
			continue
		}
		abs := reccpath.MakeAbsolute(p, cwd)
		outputPaths = append(outputPaths, reccpath.MakeRelative(abs, workingDir, "/"))
	}

	cmd := &repb.Command{
		Arguments:   pc.RemoteArgv,
		OutputPaths: outputPaths,
		WorkingDirectory: cfg.WorkingDirPrefix,
	}
	for k, v := range cfg.RemoteEnv {
		cmd.EnvironmentVariables = append(cmd.EnvironmentVariables, &repb.Command_EnvironmentVariable{Name: k, Value: v})
	}
	if len(cfg.RemotePlatform) > 0 {
		cmd.Platform = &repb.Platform{}
		for k, v := range cfg.RemotePlatform {
			cmd.Platform.Properties = append(cmd.Platform.Properties, &repb.Platform_Property{Name: k, Value: v})
		}
	}

	commandDigest, err := digest.ForMessage(cfg.Function, cmd)
	if err != nil {
		return nil, err
	}
	cmdBytes, err := proto.MarshalOptions{Deterministic: true}.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	blobs[commandDigest] = cmdBytes

	act := &repb.Action{
		CommandDigest:   commandDigest.Proto(),
		InputRootDigest: rootDigest.Proto(),
		DoNotCache:      cfg.ActionUncacheable,
	}
	actionDigest, err := digest.ForMessage(cfg.Function, act)
	if err != nil {
		return nil, err
	}
	actBytes, err := proto.MarshalOptions{Deterministic: true}.Marshal(act)
	if err != nil {
		return nil, err
	}
	blobs[actionDigest] = actBytes

	return &Assembly{
		Verdict:         ActionVerdict,
		Action:          act,
		ActionDigest:    actionDigest,
		Command:         cmd,
		CommandDigest:   commandDigest,
		InputRootDigest: rootDigest,
		Blobs:           blobs,
		WorkingDir:      workingDir,
	}, nil
}

// snapshotDirectory builds a Tree over every regular file under dir,
// without following symlinks, for the deps-directory-override path
// (used when resolving the input root from a dependency-directory override).
func snapshotDirectory(dir string, fn digest.Function, useCache bool) (*merkle.Tree, digest.Digest, merkle.BlobMap, error) {
	tree := merkle.New()
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsSymlink() || de.IsDir() {
				return nil
			}
			rel := reccpath.MakeRelative(path, dir, "/")
			rec, ferr := digest.ForFile(fn, path, useCache)
			if ferr != nil {
				return nil
			}
			tree.Insert(rel, rec)
			return nil
		},
	})
	if err != nil {
		return nil, digest.Digest{}, nil, err
	}
	blobs := merkle.BlobMap{}
	root, err := tree.Digest(fn, blobs)
	if err != nil {
		return nil, digest.Digest{}, nil, err
	}
	return tree, root, blobs, nil
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func unionSets(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func productSet(override []string, fallback map[string]bool) map[string]bool {
	if len(override) > 0 {
		out := map[string]bool{}
		for _, p := range override {
			out[p] = true
		}
		return out
	}
	return fallback
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// commonAncestorPath returns the working directory that preserves every
// relative path reference in paths: it walks cwd up by the maximum number
// of leading ".." segments found across paths. If cwd has fewer segments
// than that, it raises rather than silently truncating.
func commonAncestorPath(paths []string, cwd string) (string, error) {
	maxLevels := 0
	for _, p := range paths {
		if lvl := reccpath.ParentDirectoryLevels(p); lvl > maxLevels {
			maxLevels = lvl
		}
	}
	if maxLevels == 0 {
		return reccpath.Normalize(cwd), nil
	}
	normalized := reccpath.Normalize(cwd)
	cwdSegs := strings.Split(strings.Trim(normalized, "/"), "/")
	if maxLevels > len(cwdSegs) {
		return "", fmt.Errorf("action: cwd %q has fewer than %d segments to ascend", cwd, maxLevels)
	}
	kept := cwdSegs[:len(cwdSegs)-maxLevels]
	return "/" + strings.Join(kept, "/"), nil
}
