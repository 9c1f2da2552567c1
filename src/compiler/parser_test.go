package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-build/recc/src/reccpath"
)

func cfg() Config {
	return Config{WorkingDir: "/work", ProjectRoot: "/"}
}

func TestParseEmptyArgvIsNotCompiler(t *testing.T) {
	pc, err := Parse(nil, cfg())
	require.NoError(t, err)
	assert.True(t, pc.IsNoneFlavor())
	assert.False(t, pc.IsCompiler)
}

func TestParseNonCompilerCommand(t *testing.T) {
	pc, err := Parse([]string{"ls", "-la"}, cfg())
	require.NoError(t, err)
	assert.True(t, pc.IsNoneFlavor())
	assert.Equal(t, []string{"ls", "-la"}, pc.RemoteArgv)
}

func TestParseSimpleGccCompile(t *testing.T) {
	pc, err := Parse([]string{"gcc", "-c", "hello.cpp", "-o", "hello.o"}, cfg())
	require.NoError(t, err)
	assert.Equal(t, GccLike, pc.Flavor)
	assert.True(t, pc.IsCompiler)
	assert.Equal(t, []string{"gcc", "-c", "hello.cpp", "-o", "hello.o"}, pc.RemoteArgv)
	assert.True(t, pc.Products["hello.o"])
}

func TestParsePrefixMapRewrite(t *testing.T) {
	c := cfg()
	c.PrefixMap = []reccpath.PrefixMapping{{Old: "/usr/include", New: "/usr"}}
	pc, err := Parse([]string{"gcc", "-c", "hello.cpp", "-I/usr/include/extra", "-o", "hello.o"}, c)
	require.NoError(t, err)
	want := "-I" + rewriteForRemote("/usr/extra", c)
	assert.Contains(t, pc.RemoteArgv, want)
	assert.Contains(t, pc.DepsArgv, "-I/usr/include/extra")
}

func TestParseClangLikeDetected(t *testing.T) {
	pc, err := Parse([]string{"clang++", "-c", "a.cc", "-o", "a.o"}, cfg())
	require.NoError(t, err)
	assert.Equal(t, GccLike, pc.Flavor)
	assert.True(t, pc.IsClang)
}

func TestParseSunDialectAppendsXM(t *testing.T) {
	pc, err := Parse([]string{"CC", "-c", "a.cc", "-o", "a.o"}, cfg())
	require.NoError(t, err)
	assert.Equal(t, SunCPP, pc.Flavor)
	assert.True(t, pc.ProducesSunMakeRules)
	assert.Contains(t, pc.DepsArgv, "-xM")
}

func TestParseAIXAppendsDepsFile(t *testing.T) {
	pc, err := Parse([]string{"xlc", "-c", "a.c", "-o", "a.o"}, cfg())
	require.NoError(t, err)
	assert.Equal(t, AIX, pc.Flavor)
	assert.NotEmpty(t, pc.AIXDepsFile)
}

func TestOptionSpellingEquivalence(t *testing.T) {
	glued, err := Parse([]string{"gcc", "-c", "-I/usr/include", "a.c"}, cfg())
	require.NoError(t, err)
	separate, err := Parse([]string{"gcc", "-c", "-I", "/usr/include", "a.c"}, cfg())
	require.NoError(t, err)
	equals, err := Parse([]string{"gcc", "-c", "-I=/usr/include", "a.c"}, cfg())
	require.NoError(t, err)

	// cfg() runs in /work with "/" as project root, so the include path is
	// relativized to "../usr/include" for the remote argv in every spelling.
	want := rewriteForRemote("/usr/include", cfg())
	assert.Contains(t, glued.RemoteArgv, "-I"+want)
	assert.Subset(t, separate.RemoteArgv, []string{"-I", want})
	assert.Contains(t, equals.RemoteArgv, "-I="+want)
}

func TestUnsupportedOptionStopsParsing(t *testing.T) {
	pc, err := Parse([]string{"gcc", "-c", "a.c", "-flto", "-o", "a.o", "-Wall"}, cfg())
	require.NoError(t, err)
	assert.True(t, pc.ContainsUnsupportedOption)
	// Everything from "-flto" onward is copied verbatim to both vectors,
	// not individually reinterpreted (so "-o a.o" is never treated as a
	// declared output product). The probe's own "-M" is still appended to
	// the dependency vector after parsing.
	assert.Equal(t, []string{"gcc", "-c", "a.c", "-flto", "-o", "a.o", "-Wall"}, pc.RemoteArgv)
	assert.Equal(t, []string{"gcc", "-c", "a.c", "-flto", "-o", "a.o", "-Wall", "-M"}, pc.DepsArgv)
	assert.False(t, pc.Products["a.o"])
}

func TestUnsupportedOptionAbsentLeavesFlagFalse(t *testing.T) {
	pc, err := Parse([]string{"gcc", "-c", "a.c", "-o", "a.o"}, cfg())
	require.NoError(t, err)
	assert.False(t, pc.ContainsUnsupportedOption)
}
