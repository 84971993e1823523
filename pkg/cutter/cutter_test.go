package cutter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name   string
	args   []string
	stderr []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	return nil, f.stderr, f.err
}

func TestCut_Arguments(t *testing.T) {
	r := &fakeRunner{}
	c := New("tilecutter", r)

	err := c.Cut(context.Background(), "/work/abc/source.png", "/work/abc/tiles_4_4", 4, 4)
	require.NoError(t, err)

	assert.Equal(t, "tilecutter", r.name)
	assert.Equal(t, []string{
		"--profile=raster",
		"--zoom=4-4",
		"--resampling=none",
		"/work/abc/source.png",
		"/work/abc/tiles_4_4",
	}, r.args)
}

func TestCut_NonZeroExit(t *testing.T) {
	r := &fakeRunner{
		stderr: []byte("ERROR: cannot open source image"),
		err:    errors.New("exit status 2"),
	}
	c := New("tilecutter", r)

	err := c.Cut(context.Background(), "/work/abc/source.png", "/work/abc/tiles_0_3", 0, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zoom 0-3")
	assert.Contains(t, err.Error(), "cannot open source image")
}

func TestCut_StderrTruncated(t *testing.T) {
	r := &fakeRunner{
		stderr: []byte(strings.Repeat("x", 4096)),
		err:    errors.New("exit status 1"),
	}
	c := New("tilecutter", r)

	err := c.Cut(context.Background(), "in.png", "out", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(truncated)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab...(truncated)", truncate("abcdef", 2))
}
