package deps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveParsesStdout(t *testing.T) {
	probe := []string{"/bin/sh", "-c", "printf 'x.o: a.c b.c\\n'"}
	res, err := Resolve(context.Background(), probe, ResolveOptions{Dialect: GNU})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.c", "b.c"}, res.Dependencies)
	assert.True(t, res.Products["a.out"])
}

func TestResolveSubprocessFailed(t *testing.T) {
	probe := []string{"/bin/sh", "-c", "exit 3"}
	_, err := Resolve(context.Background(), probe, ResolveOptions{Dialect: GNU})
	require.Error(t, err)
	var sf *SubprocessFailed
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 3, sf.ExitCode)
}
