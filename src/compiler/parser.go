// Package compiler classifies a raw compiler argv by dialect and splits it
// into a path-rewritten remote command, a dependency-probe command meant to
// run locally, and the set of declared output products.
package compiler

import (
	"os"
	"strings"

	"github.com/outpost-build/recc/src/reccpath"
)

// Config carries the subset of the ambient configuration the
// parser needs. It is built once at startup and passed explicitly rather
// than read from a package global, per the immutable-configuration shape
// this module follows throughout.
type Config struct {
	WorkingDir      string
	ProjectRoot     string
	PrefixMap       []reccpath.PrefixMapping
	DepsGlobalPaths bool
	TempDir         string
}

// sourceExtensions is consulted only as a heuristic to decide IsCompiler
// when no explicit "-c"/"-S"/"-E" flag was seen — e.g. "gcc foo.cpp -o foo"
// compiles and links in one step with no flag that says so explicitly.
var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".C": true,
	".i": true, ".ii": true,
}

// ParsedCommand is the result of classifying and splitting a compiler argv.
type ParsedCommand struct {
	Argv                      []string
	RemoteArgv                []string
	DepsArgv                  []string
	Products                  map[string]bool
	Flavor                    Flavor
	IsClang                   bool
	IsCompiler                bool
	ProducesSunMakeRules      bool
	ContainsUnsupportedOption bool
	// AIXDepsFile is the path of the scoped temporary file the AIX
	// compiler will write its dependency listing into, set only when
	// Flavor == AIX and parsing completed normally.
	AIXDepsFile string
}

// IsNoneFlavor reports whether argv[0] did not match any recognized
// compiler driver name.
func (pc *ParsedCommand) IsNoneFlavor() bool {
	return pc.Flavor == None
}

// Parse classifies argv and builds its remote/probe/products split. An
// empty argv, or an argv whose argv[0] does not match a recognized
// compiler driver, returns a ParsedCommand with Flavor == None and
// IsCompiler == false; this is "not a compiler command" at the Action
// assembly boundary, not an error.
func Parse(argv []string, cfg Config) (*ParsedCommand, error) {
	pc := &ParsedCommand{
		Argv:     argv,
		Products: map[string]bool{},
	}
	if len(argv) == 0 {
		return pc, nil
	}

	basename := reccpath.Basename(argv[0])
	pc.Flavor = DetectFlavor(basename)
	pc.ProducesSunMakeRules = pc.Flavor.ProducesSunMakeRules()
	if pc.Flavor == GccLike {
		pc.IsClang = IsClang(basename)
	}
	if pc.Flavor == None {
		pc.RemoteArgv = append([]string{}, argv...)
		pc.DepsArgv = append([]string{}, argv...)
		return pc, nil
	}

	table := tableFor(pc.Flavor)

	pc.RemoteArgv = append(pc.RemoteArgv, argv[0])
	pc.DepsArgv = append(pc.DepsArgv, argv[0])

	i := 1
	for i < len(argv) {
		tok := argv[i]
		if !strings.HasPrefix(tok, "-") {
			// Positional argument: almost always a source or object file.
			pc.RemoteArgv = append(pc.RemoteArgv, rewriteForRemote(tok, cfg))
			pc.DepsArgv = append(pc.DepsArgv, tok)
			if hasSourceExtension(tok) {
				pc.IsCompiler = true
			}
			i++
			continue
		}

		key, value, hasValue := splitEquals(tok)
		matchKey, r, ok := table.lookup(key)
		if !ok {
			// Unrecognized flag: pass through unchanged, it can't be a
			// path we'd need to rewrite.
			pc.RemoteArgv = append(pc.RemoteArgv, tok)
			pc.DepsArgv = append(pc.DepsArgv, tok)
			i++
			continue
		}
		if hasValue && matchKey != key {
			// The "=" belongs to a glued value (e.g. "-DFOO=bar"), not to
			// the option itself.
			hasValue, value = false, ""
		}

		glued := tok != matchKey && !hasValue
		var gluedValue string
		if glued {
			gluedValue = tok[len(matchKey):]
		}

		switch r.category {
		case compile:
			pc.IsCompiler = true
			pc.RemoteArgv = append(pc.RemoteArgv, tok)
			pc.DepsArgv = append(pc.DepsArgv, tok)
			i++

		case unsupported:
			pc.ContainsUnsupportedOption = true
			rest := argv[i:]
			pc.RemoteArgv = append(pc.RemoteArgv, rest...)
			pc.DepsArgv = append(pc.DepsArgv, rest...)
			i = len(argv)

		case interferesWithDeps:
			consumed := emitValueOption(pc, tok, matchKey, value, hasValue, glued, gluedValue, r, argv, i, cfg, false, false)
			i += consumed

		case inputPath:
			consumed := emitValueOption(pc, tok, matchKey, value, hasValue, glued, gluedValue, r, argv, i, cfg, true, false)
			i += consumed

		case redirectsOutput:
			consumed := emitValueOption(pc, tok, matchKey, value, hasValue, glued, gluedValue, r, argv, i, cfg, true, true)
			i += consumed

		case preprocessorPassthrough:
			consumed := emitPreprocessorPassthrough(pc, matchKey, value, hasValue, glued, gluedValue, r, argv, i, cfg)
			i += consumed
		}
	}

	appendDepsProbeSwitches(pc, cfg)
	return pc, nil
}

// splitEquals splits tok at an "=" if one is present, e.g. "-o=foo" ->
// ("-o", "foo", true). If no "=" is present, ("tok", "", false) is
// returned (the whole token is the key to look up).
func splitEquals(tok string) (key, value string, hasValue bool) {
	if idx := strings.IndexByte(tok, '='); idx >= 0 {
		return tok[:idx], tok[idx+1:], true
	}
	return tok, "", false
}

func hasSourceExtension(p string) bool {
	idx := strings.LastIndexByte(p, '.')
	if idx < 0 {
		return false
	}
	return sourceExtensions[p[idx:]]
}

func rewriteForRemote(p string, cfg Config) string {
	rewritten := reccpath.ResolveViaPrefixMap(p, cfg.PrefixMap)
	if strings.HasPrefix(rewritten, "/") {
		rewritten = reccpath.MakeRelative(rewritten, cfg.WorkingDir, cfg.ProjectRoot)
	}
	return rewritten
}

// emitValueOption handles interferesWithDeps/inputPath/redirectsOutput
// categories, which share the same "resolve one value, maybe rewrite it,
// emit to one or both vectors" shape. It returns how many argv tokens were
// consumed (1 or 2).
func emitValueOption(
	pc *ParsedCommand,
	tok, matchKey, value string,
	hasValue, glued bool,
	gluedValue string,
	r rule,
	argv []string,
	i int,
	cfg Config,
	isPath bool,
	isOutput bool,
) int {
	consumed := 1
	var localValue string
	switch {
	case hasValue:
		localValue = value
	case glued:
		localValue = gluedValue
	case r.hasSeparateArg && i+1 < len(argv):
		localValue = argv[i+1]
		consumed = 2
	default:
		localValue = ""
	}

	if isOutput && localValue != "" {
		pc.Products[reccpath.Normalize(localValue)] = true
	}

	remoteValue := localValue
	if isPath && localValue != "" {
		remoteValue = rewriteForRemote(localValue, cfg)
	}

	remoteTok, probeTok := renderOption(matchKey, localValue, remoteValue, hasValue, glued, r.hasSeparateArg && consumed == 2)

	switch {
	case r.category == interferesWithDeps:
		pc.RemoteArgv = append(pc.RemoteArgv, remoteTok...)
	default:
		pc.RemoteArgv = append(pc.RemoteArgv, remoteTok...)
		pc.DepsArgv = append(pc.DepsArgv, probeTok...)
	}
	_ = tok
	return consumed
}

// renderOption reconstructs the argv tokens for an option whose value was
// either glued, "="-joined, or separate, preserving that same shape for
// both the remote (path-rewritten) and local (original) renderings.
func renderOption(key, localValue, remoteValue string, hasEquals, glued, separate bool) (remoteTok, probeTok []string) {
	switch {
	case separate:
		return []string{key, remoteValue}, []string{key, localValue}
	case hasEquals:
		return []string{key + "=" + remoteValue}, []string{key + "=" + localValue}
	case glued:
		return []string{key + remoteValue}, []string{key + localValue}
	default:
		return []string{key}, []string{key}
	}
}

// emitPreprocessorPassthrough implements the preprocessor-passthrough
// category: the buffered argument is re-parsed against the gcc
// preprocessor rule table, then re-emitted wrapped in "-Xpreprocessor" on
// the remote side. These switches exist to influence dependency output, so
// (like interferesWithDeps options) they are suppressed from the probe
// argv — the resolver appends its own deps switches instead.
func emitPreprocessorPassthrough(pc *ParsedCommand, matchKey, value string, hasValue, glued bool, gluedValue string, r rule, argv []string, i int, cfg Config) int {
	consumed := 1
	var buffered string
	switch {
	case hasValue:
		buffered = value
	case glued:
		buffered = gluedValue
	case r.hasSeparateArg && i+1 < len(argv):
		buffered = argv[i+1]
		consumed = 2
	}
	if buffered == "" {
		pc.RemoteArgv = append(pc.RemoteArgv, matchKey)
		return consumed
	}

	subKey, subValue, subHasValue := splitEquals(buffered)
	subMatchKey, subRule, ok := gccPreprocessorRules.lookup(subKey)
	if !ok {
		pc.RemoteArgv = append(pc.RemoteArgv, "-Xpreprocessor", buffered)
		return consumed
	}

	glued2 := buffered != subMatchKey && !subHasValue
	var glued2Value string
	if glued2 {
		glued2Value = buffered[len(subMatchKey):]
	}
	localValue := subValue
	if glued2 {
		localValue = glued2Value
	}
	remoteValue := localValue
	if subRule.category == inputPath && localValue != "" {
		remoteValue = rewriteForRemote(localValue, cfg)
	}

	var rendered string
	switch {
	case subHasValue:
		rendered = subMatchKey + "=" + remoteValue
	case glued2:
		rendered = subMatchKey + remoteValue
	case localValue != "":
		rendered = subMatchKey + " " + remoteValue
	default:
		rendered = subMatchKey
	}
	pc.RemoteArgv = append(pc.RemoteArgv, "-Xpreprocessor", rendered)
	return consumed
}

// appendDepsProbeSwitches appends the flavor's standard dependency-emitting
// switches to the probe argv.
func appendDepsProbeSwitches(pc *ParsedCommand, cfg Config) {
	switch pc.Flavor {
	case GccLike:
		pc.DepsArgv = append(pc.DepsArgv, "-M")
		if pc.IsClang && cfg.DepsGlobalPaths {
			pc.DepsArgv = append(pc.DepsArgv, "-v")
		}
	case SunCPP, SunC:
		pc.DepsArgv = append(pc.DepsArgv, "-xM")
	case AIX:
		f, err := os.CreateTemp(cfg.TempDir, "recc-deps-*.d")
		if err == nil {
			f.Close()
			pc.AIXDepsFile = f.Name()
			pc.DepsArgv = append(pc.DepsArgv, "-qmakedep=gcc", "-MF", pc.AIXDepsFile)
		}
	}
}
