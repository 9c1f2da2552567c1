// Command recc transparently redirects C/C++ compiler invocations to a
// Remote Execution API build farm: invoked exactly as the compiler it
// wraps, it decides whether to send the work remotely and, when it does,
// materializes the results as if the compiler had run locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thought-machine/go-flags"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/outpost-build/recc/src/action"
	"github.com/outpost-build/recc/src/compiler"
	"github.com/outpost-build/recc/src/deps"
	"github.com/outpost-build/recc/src/digest"
	"github.com/outpost-build/recc/src/reccconfig"
	"github.com/outpost-build/recc/src/recclog"
	"github.com/outpost-build/recc/src/reccpath"
	"github.com/outpost-build/recc/src/reccremote"
	"github.com/outpost-build/recc/src/subprocess"
)

// Exit codes the CLI wrapper returns, per the ambient exit-code table: a
// propagated compiler exit code takes any other positive value, so these
// are chosen clear of the usual 1-2 digit range real compilers use.
const (
	exitUsage               = 100
	exitLocalExecFailed     = 101
	exitBadTransportConfig  = 102
	exitCapabilitiesRejected = 103
	exitExecuteFailed       = 104
	exitMaterializeFailed   = 105
	exitCancelled           = 130
)

var log = recclog.Named("main")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "recc: usage: recc [recc-flags] -- <compiler> [args...]")
		return exitUsage
	}

	cliFlags, argv, err := parseCLIFlags(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc: %v\n", err)
		return exitUsage
	}
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "recc: usage: recc [recc-flags] -- <compiler> [args...]")
		return exitUsage
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc: cannot determine working directory: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(cwd, cliFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc: %v\n", err)
		return exitUsage
	}

	level, err := logging.LogLevel(cfg.LogLevel)
	if err != nil {
		level = logging.WARNING
	}
	fileLevel, err := logging.LogLevel(cfg.FileLogLevel)
	if err != nil {
		fileLevel = logging.WARNING
	}
	if err := recclog.Init(level, cfg.LogFile, fileLevel); err != nil {
		fmt.Fprintf(os.Stderr, "recc: failed to initialize logging: %v\n", err)
	}

	pc, err := compiler.Parse(argv, compiler.Config{
		WorkingDir:      cwd,
		ProjectRoot:     cfg.ProjectRoot,
		PrefixMap:       toPrefixMappings(cfg.PrefixReplacement),
		DepsGlobalPaths: cfg.DepsGlobalPaths,
		TempDir:         os.TempDir(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc: %v\n", err)
		return exitUsage
	}

	if pc.ContainsUnsupportedOption && !cfg.ForceRemote {
		return execLocal(argv)
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	cancelFlag := reccremote.NewCancelFlag()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			cancelFlag.Trigger()
		}
	}()
	defer signal.Stop(sigCh)

	asm, err := action.Assemble(ctx, pc, cwd, action.Config{
		Function:              digest.Function(cfg.DigestFunction),
		WorkingDirPrefix:      "",
		RemoteEnv:             cfg.EnvironmentVariable,
		RemotePlatform:        cfg.Platform,
		ForceRemote:           cfg.ForceRemote,
		DepsOverride:          cfg.DepsOverride,
		DepsDirectoryOverride: cfg.DepsDirectoryOverride,
		OutputFilesOverride:   cfg.OutputFilesOverride,
		DepsEnvOverlay:        cfg.DepsEnvOverlay,
		DepsDialect:           depsDialect(pc),
		DepsFilter:            deps.FilterOptions{GlobalPaths: cfg.DepsGlobalPaths, ExcludePrefixes: cfg.ExcludePaths},
		ExcludePrefixes:       cfg.ExcludePaths,
	})
	if err != nil {
		log.Errorf("assembling action: %v", err)
		return execLocal(argv)
	}
	if asm.Verdict != action.ActionVerdict {
		return execLocal(argv)
	}

	client, err := reccremote.New(ctx, reccremote.Config{
		ExecutionServer:   cfg.Server,
		CASServer:         cfg.CASServer,
		ActionCacheServer: cfg.ActionCacheServer,
		Instance:          cfg.Instance,
		DigestFunction:    digest.Function(cfg.DigestFunction),
		RetryLimit:        cfg.RetryLimit,
		RetryDelayMillis:  int64(cfg.RetryDelayMillis),
		Logger:            remoteLogger{},
		ToolName:          "recc",
		ToolVersion:       version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc: %v\n", err)
		return exitBadTransportConfig
	}
	defer client.Close()

	if err := client.NegotiateCapabilities(ctx); err != nil {
		log.Warningf("capability negotiation failed: %v", err)
		var unsupported *reccremote.UnsupportedDigestFunction
		if isUnsupportedDigestFunction(err, &unsupported) {
			fmt.Fprintf(os.Stderr, "recc: %v\n", err)
			return exitCapabilitiesRejected
		}
	}

	present, result, err := client.ProbeActionCache(ctx, asm.ActionDigest)
	if err != nil {
		log.Warningf("action cache probe failed: %v", err)
	}
	if !present {
		if cfg.CacheOnly {
			return execLocal(argv)
		}
		if err := client.UploadBlobs(ctx, asm.Blobs); err != nil {
			fmt.Fprintf(os.Stderr, "recc: uploading inputs: %v\n", err)
			return execLocal(argv)
		}
		if cfg.NoExecute {
			fmt.Printf("%s\n", asm.ActionDigest.String())
			return 0
		}
		result, err = client.Execute(ctx, asm.ActionDigest, true, cancelFlag)
		if err != nil {
			if cancelFlag != nil && cancelFlagTriggered(err) {
				return exitCancelled
			}
			fmt.Fprintf(os.Stderr, "recc: %v\n", err)
			return exitExecuteFailed
		}
	}

	stdout, stderr, err := client.MaterializeOutputs(ctx, result, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recc: %v\n", err)
		return exitMaterializeFailed
	}
	os.Stdout.Write(stdout)
	os.Stderr.Write(stderr)
	return int(result.GetExitCode())
}

// version is the tool version attached to every RPC's RequestMetadata.
// Set at build time via -ldflags; left as a placeholder otherwise.
var version = "dev"

// parseCLIFlags splits argv at the first literal "--": tokens before it are
// parsed as recc's own flags, tokens after (or the whole of argv, if there
// is no "--") are the compiler invocation left untouched. A compiler wrapper
// can't otherwise tell its own flags apart from the wrapped compiler's.
func parseCLIFlags(argv []string) (reccconfig.CLIFlags, []string, error) {
	var f reccconfig.CLIFlags
	sep := -1
	for i, a := range argv {
		if a == "--" {
			sep = i
			break
		}
	}
	if sep < 0 {
		return f, argv, nil
	}
	parser := flags.NewParser(&f, flags.Default&^flags.PrintErrors)
	if _, err := parser.ParseArgs(argv[:sep]); err != nil {
		return f, nil, fmt.Errorf("parsing flags: %w", err)
	}
	return f, argv[sep+1:], nil
}

func loadConfig(cwd string, cliFlags reccconfig.CLIFlags) (reccconfig.Config, error) {
	files := reccconfig.SearchPath(cwd, os.Getenv("RECC_PROJECT_ROOT"))
	cfg, err := reccconfig.Load(files)
	if err != nil {
		return cfg, err
	}
	cliFlags.Apply(&cfg)
	reccconfig.ApplyEnv(&cfg, os.Getenv)
	return cfg, nil
}

func execLocal(argv []string) int {
	if err := subprocess.ExecLocal(argv, nil); err != nil {
		fmt.Fprintf(os.Stderr, "recc: local execution failed: %v\n", err)
		return exitLocalExecFailed
	}
	// ExecLocal only returns on failure; this is unreachable on success.
	return 0
}

func toPrefixMappings(pairs []reccconfig.PrefixPair) []reccpath.PrefixMapping {
	out := make([]reccpath.PrefixMapping, len(pairs))
	for i, p := range pairs {
		out[i] = reccpath.PrefixMapping{Old: p.Old, New: p.New}
	}
	return out
}

func depsDialect(pc *compiler.ParsedCommand) deps.Dialect {
	if pc.ProducesSunMakeRules {
		return deps.Sun
	}
	return deps.GNU
}

func isUnsupportedDigestFunction(err error, target **reccremote.UnsupportedDigestFunction) bool {
	if u, ok := err.(*reccremote.UnsupportedDigestFunction); ok {
		*target = u
		return true
	}
	return false
}

func cancelFlagTriggered(err error) bool {
	_, ok := err.(*reccremote.Cancelled)
	return ok
}

type remoteLogger struct{}

func (remoteLogger) Debugf(format string, args ...interface{})   { log.Debugf(format, args...) }
func (remoteLogger) Warningf(format string, args ...interface{}) { log.Warningf(format, args...) }
