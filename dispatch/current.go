package dispatch

import (
	"context"

	wasmhost "github.com/wippyai/wasm-host"
)

type currentKey struct{}

// WithCurrent returns a context marking module as the one the calling
// worker is executing. The pool attaches it to every invocation, so host
// functions called back from inside the guest can recover their caller.
func WithCurrent(ctx context.Context, module wasmhost.Handle) context.Context {
	return context.WithValue(ctx, currentKey{}, module)
}

// Current returns the module marked on ctx, if any. Outside a dispatch
// invocation there is none.
func Current(ctx context.Context) (wasmhost.Handle, bool) {
	h, ok := ctx.Value(currentKey{}).(wasmhost.Handle)
	if !ok || !h.Valid() {
		return "", false
	}
	return h, true
}
