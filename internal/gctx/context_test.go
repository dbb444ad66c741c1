package gctx_test

import (
	"testing"

	"github.com/genesis-deploy/genesis/internal/gctx"
	"github.com/genesis-deploy/genesis/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct{ name string }

func (f fakeStore) Name() string { return f.name }

func TestContextCurrentAndDefaultStore(t *testing.T) {
	t.Parallel()

	ctx := gctx.New(logging.New(false, true), nil)
	require.Nil(t, ctx.CurrentStore())
	require.Nil(t, ctx.DefaultStore())

	primary := fakeStore{name: "primary"}
	ctx.SetCurrentStore(primary)
	assert.Equal(t, primary, ctx.CurrentStore())

	fallback := fakeStore{name: "fallback"}
	ctx.SetDefaultStore(fallback)
	assert.Equal(t, fallback, ctx.DefaultStore())

	found, ok := ctx.Store("primary")
	assert.True(t, ok)
	assert.Equal(t, primary, found)
}

func TestContextClearResetsState(t *testing.T) {
	t.Parallel()

	ctx := gctx.New(logging.New(false, true), nil)
	ctx.SetCurrentStore(fakeStore{name: "x"})
	ctx.Clear()

	assert.Nil(t, ctx.CurrentStore())
	_, ok := ctx.Store("x")
	assert.False(t, ok)
}

func TestNewDefaultsExecutor(t *testing.T) {
	t.Parallel()

	ctx := gctx.New(logging.New(false, true), nil)
	require.NotNil(t, ctx.Executor)
}
