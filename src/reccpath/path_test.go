package reccpath

import "testing"

import "github.com/stretchr/testify/assert"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                   ".",
		".":                  ".",
		"a/./b":              "a/b",
		"a//b":               "a/b",
		"a/b/":               "a/b",
		"a/../b":             "b",
		"../a":               "../a",
		"a/../../b":          "../b",
		"/a/../../b":         "/b",
		"/":                  "/",
		"/a/b/../..":         "/",
		"/../a":              "/a",
		"./a/./b/../c":       "a/c",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestMakeAbsolute(t *testing.T) {
	assert.Equal(t, "/work/a.c", MakeAbsolute("a.c", "/work"))
	assert.Equal(t, "/a.c", MakeAbsolute("/a.c", "/work"))
	assert.Equal(t, "/work", MakeAbsolute(".", "/work"))
}

func TestMakeRelative(t *testing.T) {
	assert.Equal(t, "c.h", MakeRelative("/work/c.h", "/work", "/"))
	assert.Equal(t, "sub/c.h", MakeRelative("/work/sub/c.h", "/work", "/"))
	assert.Equal(t, "../other/c.h", MakeRelative("/other/c.h", "/work", "/"))
	assert.Equal(t, ".", MakeRelative("/work", "/work", "/"))
	// Not absolute: returned unchanged.
	assert.Equal(t, "c.h", MakeRelative("c.h", "/work", "/"))
	// Empty base: returned unchanged.
	assert.Equal(t, "/work/c.h", MakeRelative("/work/c.h", "", "/"))
	// Outside project root: returned unchanged.
	assert.Equal(t, "/other/c.h", MakeRelative("/other/c.h", "/work", "/work"))
}

func TestMakeRelativeRoundTrip(t *testing.T) {
	for _, p := range []string{"/work/a/b.c", "/other/x.c", "/work"} {
		base := "/work"
		root := "/"
		got := Normalize(MakeAbsolute(MakeRelative(MakeAbsolute(p, base), base, root), base))
		want := Normalize(MakeAbsolute(p, base))
		assert.Equal(t, want, got, "round trip for %q", p)
	}
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("/usr/include/foo.h", "/usr/include"))
	assert.True(t, HasPrefix("/usr/include/foo.h", "/usr/include/"))
	assert.True(t, HasPrefix("/usr/include", "/usr/include"))
	assert.False(t, HasPrefix("/usr/includeextra/foo.h", "/usr/include"))
	assert.False(t, HasPrefix("/usr/inc", "/usr/include"))
}

func TestResolveViaPrefixMap(t *testing.T) {
	pairs := []PrefixMapping{{Old: "/usr/include", New: "/usr"}}
	assert.Equal(t, "/usr/extra", ResolveViaPrefixMap("/usr/include/extra", pairs))
	assert.Equal(t, "/opt/x", ResolveViaPrefixMap("/opt/x", pairs))
}

func TestLastNSegments(t *testing.T) {
	assert.Equal(t, "b/c", LastNSegments("/a/b/c", 2))
	assert.Equal(t, "a/b/c", LastNSegments("/a/b/c", 10))
	assert.Equal(t, "", LastNSegments("/a/b/c", 0))
}

func TestParentDirectoryLevels(t *testing.T) {
	assert.Equal(t, 0, ParentDirectoryLevels("a/b"))
	assert.Equal(t, 2, ParentDirectoryLevels("../../a/b"))
}

func TestBasenameDirname(t *testing.T) {
	assert.Equal(t, "c.h", Basename("/a/b/c.h"))
	assert.Equal(t, "/a/b", Dirname("/a/b/c.h"))
	assert.Equal(t, "/", Basename("/"))
	assert.Equal(t, ".", Dirname("c.h"))
}
