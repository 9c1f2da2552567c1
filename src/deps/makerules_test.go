package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGNURules(t *testing.T) {
	input := "x.o: a.c b.c \\\n c.c\n"
	got := ParseMakeRules(input, GNU)
	assert.ElementsMatch(t, []string{"a.c", "b.c", "c.c"}, got)
}

func TestParseGNURulesEscapedSpace(t *testing.T) {
	input := "x.o: a\\ file.c b.c\n"
	got := ParseMakeRules(input, GNU)
	assert.ElementsMatch(t, []string{"a file.c", "b.c"}, got)
}

func TestParseSunRules(t *testing.T) {
	input := "x.o : a.c\nx.o : b c.c\n"
	got := ParseMakeRules(input, Sun)
	assert.ElementsMatch(t, []string{"a.c", "b c.c"}, got)
}

func TestFilterExcludesAbsoluteByDefault(t *testing.T) {
	got := Filter([]string{"a.c", "/usr/include/b.h"}, FilterOptions{})
	assert.Equal(t, []string{"a.c"}, got)
}

func TestFilterKeepsGlobalPathsExceptExcluded(t *testing.T) {
	opts := FilterOptions{GlobalPaths: true, ExcludePrefixes: []string{"/usr/include"}}
	got := Filter([]string{"a.c", "/usr/include/b.h", "/opt/c.h"}, opts)
	assert.ElementsMatch(t, []string{"a.c", "/opt/c.h"}, got)
}

func TestGuessProducts(t *testing.T) {
	products := GuessProducts([]string{"src/foo.cpp"})
	assert.True(t, products["a.out"])
	assert.True(t, products["foo.o"])
	assert.True(t, products["foo.gch"])
	assert.True(t, products["foo.d"])
	assert.True(t, products["src/foo.cpp.o"])
}
