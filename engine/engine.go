package engine

import (
	"context"

	wasmhost "github.com/wippyai/wasm-host"
)

// Function is an opaque reference to one exported function inside a loaded
// module, as resolved by the engine. References are only meaningful to the
// engine that produced them.
type Function interface {
	// Name returns the export name the reference was resolved from.
	Name() string
}

// ExecContext is the engine-owned runtime state needed to call into one
// module's exports. The host owns exactly one per registered module and
// destroys it exactly once, at unregistration or shutdown.
type ExecContext interface {
	// Module returns the handle of the module this context executes.
	Module() wasmhost.Handle
}

// Engine is the execution-engine capability the host consumes. The host
// never interprets module code itself; everything below this boundary is
// the engine's business, including fault detection and memory translation.
//
// Implementations must be safe for concurrent use. Invoke may be called
// from several workers at once, but never concurrently for the same
// ExecContext: the dispatch layer serializes per-module invocation because
// execution contexts are not assumed reentrant-safe across threads.
type Engine interface {
	// CreateContext allocates an execution context for a loaded module.
	CreateContext(ctx context.Context, module wasmhost.Handle) (ExecContext, error)

	// DestroyContext releases an execution context. Calling Invoke with a
	// destroyed context is an error; destroying twice is an error.
	DestroyContext(ctx context.Context, ec ExecContext) error

	// LookupFunction resolves an exported function by name.
	LookupFunction(module wasmhost.Handle, name string) (Function, bool)

	// Invoke calls fn inside ec with the given integer arguments. A non-nil
	// error means the engine reported a runtime fault; the fault
	// description stays queryable through LastFault until cleared.
	Invoke(ctx context.Context, ec ExecContext, fn Function, args []uint32) error

	// LastFault returns the most recent fault description for a module, or
	// "" if none is pending.
	LastFault(module wasmhost.Handle) string

	// ClearFault resets the module's pending fault state. Callers retrying
	// a faulted invocation must clear first; engines with sticky exception
	// state would otherwise report the stale fault on the next call.
	ClearFault(module wasmhost.Handle)

	// Memory returns a host-accessible view of the module's linear memory,
	// or false if the module exports none.
	Memory(module wasmhost.Handle) (wasmhost.Memory, bool)

	// BindWorker prepares the calling goroutine to invoke module code, and
	// UnbindWorker releases that binding. A dispatch worker binds before
	// its first Invoke and unbinds after it observes the stop signal with
	// no dispatch in flight. Engines backed by native runtimes may pin the
	// OS thread or allocate per-thread state here; pure-Go engines may
	// make both no-ops.
	BindWorker() error
	UnbindWorker()
}
