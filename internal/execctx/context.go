// Package execctx carries the per-operation execution settings (the
// exception-suppression flag and a free-form data bag) across the goroutines
// that run the physical units of one logical statement.
//
// The ambient state lives in a context.Context. An executor captures it once
// on the calling goroutine with Capture and hands the resulting immutable
// Context to every worker task, which re-installs it with Install so that code
// downstream of the physical call observes the caller's settings.
package execctx

import (
	"context"
	"maps"
)

type ctxKey struct{}

// Context is an immutable snapshot of the execution settings for one logical
// operation. The zero value means "propagate errors, empty data bag".
type Context struct {
	exceptionSuppressed bool
	data                map[string]any
}

// New creates a snapshot. The data map is copied.
func New(exceptionSuppressed bool, data map[string]any) Context {
	return Context{
		exceptionSuppressed: exceptionSuppressed,
		data:                maps.Clone(data),
	}
}

// ExceptionSuppressed reports whether backend failures should be swallowed
// and replaced by a degraded per-unit value.
func (c Context) ExceptionSuppressed() bool {
	return c.exceptionSuppressed
}

// Value returns the data bag entry for key.
func (c Context) Value(key string) (any, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Data returns a copy of the data bag. It is never nil.
func (c Context) Data() map[string]any {
	if c.data == nil {
		return map[string]any{}
	}
	return maps.Clone(c.data)
}

// Len returns the number of entries in the data bag.
func (c Context) Len() int {
	return len(c.data)
}

// FromContext returns the snapshot installed in ctx, or the zero Context.
func FromContext(ctx context.Context) Context {
	if ctx == nil {
		return Context{}
	}
	if c, ok := ctx.Value(ctxKey{}).(Context); ok {
		return c
	}
	return Context{}
}

// Capture takes the snapshot for a logical operation. It is an alias of
// FromContext that reads better at call sites.
func Capture(ctx context.Context) Context {
	return FromContext(ctx)
}

// Install returns a child of ctx whose ambient execution settings are c.
func Install(ctx context.Context, c Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// WithExceptionSuppressed returns a child of ctx with the suppression flag set.
// The data bag of the parent is preserved.
func WithExceptionSuppressed(ctx context.Context, suppressed bool) context.Context {
	cur := FromContext(ctx)
	return Install(ctx, Context{exceptionSuppressed: suppressed, data: cur.data})
}

// WithValue returns a child of ctx whose data bag holds key=value in addition
// to the parent's entries. The parent's bag is not modified.
func WithValue(ctx context.Context, key string, value any) context.Context {
	cur := FromContext(ctx)
	data := make(map[string]any, len(cur.data)+1)
	maps.Copy(data, cur.data)
	data[key] = value
	return Install(ctx, Context{exceptionSuppressed: cur.exceptionSuppressed, data: data})
}

// WithData returns a child of ctx whose data bag is replaced by a copy of data.
func WithData(ctx context.Context, data map[string]any) context.Context {
	cur := FromContext(ctx)
	return Install(ctx, New(cur.exceptionSuppressed, data))
}
