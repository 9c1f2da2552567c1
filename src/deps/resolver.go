package deps

import (
	"context"
	"fmt"
	"os"

	"github.com/outpost-build/recc/src/subprocess"
)

// SubprocessFailed is returned when the dependency-probe command exits
// non-zero. Action assembly must treat this as "no action" and
// let the caller fall back to running the real command locally, so the
// compiler's own diagnostic is what the user sees.
type SubprocessFailed struct {
	ExitCode int
}

func (e *SubprocessFailed) Error() string {
	return fmt.Sprintf("deps: dependency probe exited %d", e.ExitCode)
}

// ResolveOptions configures a single dependency-resolution run.
type ResolveOptions struct {
	Dir         string
	EnvOverlay  map[string]string
	Dialect     Dialect
	Filter      FilterOptions
	// AIXDepsFile, when non-empty, names the scoped temporary file the
	// probe compiler writes its dependency listing into instead of
	// stdout (the AIX flavor).
	AIXDepsFile string
}

// Result is the outcome of running and parsing a dependency probe.
type Result struct {
	Dependencies []string
	Products     map[string]bool
}

// Resolve runs probeArgv as a child process and parses its dependency
// output per opts.Dialect, returning the filtered dependency set together
// with a guessed product set. If the probe exits non-zero, a
// *SubprocessFailed is returned and the caller must fall back to local
// execution.
func Resolve(ctx context.Context, probeArgv []string, opts ResolveOptions) (Result, error) {
	if opts.AIXDepsFile != "" {
		defer os.Remove(opts.AIXDepsFile)
	}

	env := os.Environ()
	if len(opts.EnvOverlay) > 0 {
		env = subprocess.EnvOverlay(env, opts.EnvOverlay)
	}
	res, err := subprocess.Run(ctx, probeArgv, subprocess.Options{
		Dir:           opts.Dir,
		Env:           env,
		CaptureStdout: opts.AIXDepsFile == "",
		CaptureStderr: false,
	})
	if err != nil {
		return Result{}, err
	}
	if res.ExitCode != 0 {
		return Result{}, &SubprocessFailed{ExitCode: res.ExitCode}
	}

	var depsText string
	if opts.AIXDepsFile != "" {
		content, err := os.ReadFile(opts.AIXDepsFile)
		if err != nil {
			return Result{}, fmt.Errorf("deps: reading AIX dependency file: %w", err)
		}
		depsText = string(content)
	} else {
		depsText = string(res.Stdout)
	}

	raw := ParseMakeRules(depsText, opts.Dialect)
	filtered := Filter(raw, opts.Filter)
	return Result{
		Dependencies: filtered,
		Products:     GuessProducts(filtered),
	}, nil
}
