package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_Defaults(t *testing.T) {
	c := Capture(context.Background())

	assert.False(t, c.ExceptionSuppressed())
	assert.Equal(t, 0, c.Len())
	assert.NotNil(t, c.Data())
	_, ok := c.Value("missing")
	assert.False(t, ok)
}

func TestFromContext_Nil(t *testing.T) {
	//nolint:staticcheck
	c := FromContext(nil)
	assert.False(t, c.ExceptionSuppressed())
}

func TestWithExceptionSuppressed(t *testing.T) {
	ctx := WithValue(context.Background(), "tenant", "acme")
	ctx = WithExceptionSuppressed(ctx, true)

	c := Capture(ctx)
	assert.True(t, c.ExceptionSuppressed())

	v, ok := c.Value("tenant")
	require.True(t, ok)
	assert.Equal(t, "acme", v)
}

func TestWithValue_DoesNotMutateParent(t *testing.T) {
	parent := WithValue(context.Background(), "a", 1)
	child := WithValue(parent, "b", 2)

	p := Capture(parent)
	c := Capture(child)

	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 2, c.Len())
	_, ok := p.Value("b")
	assert.False(t, ok)
}

func TestSnapshot_IsImmutable(t *testing.T) {
	data := map[string]any{"k": "v"}
	c := New(false, data)

	// mutating the source map or a Data copy must not leak into the snapshot
	data["k"] = "changed"
	c.Data()["k"] = "changed-again"

	v, _ := c.Value("k")
	assert.Equal(t, "v", v)
}

func TestInstall_OverridesWorkerState(t *testing.T) {
	caller := WithExceptionSuppressed(WithValue(context.Background(), "trace", "t-1"), true)
	snap := Capture(caller)

	// a worker starts from an unrelated context
	worker := WithValue(context.Background(), "trace", "worker-default")
	installed := Install(worker, snap)

	got := FromContext(installed)
	assert.True(t, got.ExceptionSuppressed())
	v, _ := got.Value("trace")
	assert.Equal(t, "t-1", v)

	// the worker's own context is untouched once the task is done with it
	v, _ = FromContext(worker).Value("trace")
	assert.Equal(t, "worker-default", v)
}

func TestWithData(t *testing.T) {
	ctx := WithExceptionSuppressed(context.Background(), true)
	ctx = WithData(ctx, map[string]any{"x": 1, "y": 2})

	c := Capture(ctx)
	assert.True(t, c.ExceptionSuppressed())
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, c.Data())
}
