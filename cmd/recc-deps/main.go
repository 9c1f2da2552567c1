// Command recc-deps runs only the compiler-argv classifier and the
// dependency resolver against a compiler invocation, and prints the
// resolved dependency set one path per line — useful for inspecting what
// recc would upload without talking to any remote server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/outpost-build/recc/src/compiler"
	"github.com/outpost-build/recc/src/deps"
	"github.com/outpost-build/recc/src/reccconfig"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "recc-deps: usage: recc-deps <compiler> [args...]")
		return 100
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc-deps: %v\n", err)
		return 100
	}

	files := reccconfig.SearchPath(cwd, os.Getenv("RECC_PROJECT_ROOT"))
	cfg, err := reccconfig.Load(files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc-deps: %v\n", err)
		return 100
	}
	reccconfig.ApplyEnv(&cfg, os.Getenv)

	pc, err := compiler.Parse(argv, compiler.Config{
		WorkingDir:      cwd,
		ProjectRoot:     cfg.ProjectRoot,
		DepsGlobalPaths: cfg.DepsGlobalPaths,
		TempDir:         os.TempDir(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc-deps: %v\n", err)
		return 100
	}
	if !pc.IsCompiler {
		fmt.Fprintln(os.Stderr, "recc-deps: not a recognized compiler invocation")
		return 100
	}

	dialect := deps.GNU
	if pc.ProducesSunMakeRules {
		dialect = deps.Sun
	}

	result, err := deps.Resolve(context.Background(), pc.DepsArgv, deps.ResolveOptions{
		Dir:         cwd,
		EnvOverlay:  cfg.DepsEnvOverlay,
		Dialect:     dialect,
		Filter:      deps.FilterOptions{GlobalPaths: cfg.DepsGlobalPaths, ExcludePrefixes: cfg.ExcludePaths},
		AIXDepsFile: pc.AIXDepsFile,
	})
	if err != nil {
		if sf, ok := err.(*deps.SubprocessFailed); ok {
			fmt.Fprintf(os.Stderr, "recc-deps: dependency probe exited %d\n", sf.ExitCode)
			return sf.ExitCode
		}
		fmt.Fprintf(os.Stderr, "recc-deps: %v\n", err)
		return 100
	}

	for _, dep := range result.Dependencies {
		fmt.Println(dep)
	}
	return 0
}
