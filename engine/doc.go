// Package engine defines the execution-engine boundary of the host and
// provides the wazero-backed production implementation.
//
// The rest of the host never talks to a WebAssembly runtime directly; it
// talks to the Engine interface. Everything above this package deals in
// opaque ExecContext and Function values, so the runtime can be swapped
// (or faked in tests) without touching registry, dispatch, or host code.
//
// # Architecture
//
// The package provides three interfaces and one implementation:
//
//	Engine       - Loads modules, creates contexts, invokes functions
//	ExecContext  - Per-module execution state, created once per registration
//	Function     - Resolved export, looked up once and reused per dispatch
//	WazeroEngine - Production Engine backed by wazero
//
// # Invocation Flow
//
//  1. WazeroEngine.LoadModule() compiles and instantiates the guest binary
//  2. Engine.CreateContext() produces the module's execution context
//  3. Engine.LookupFunction() resolves an export by name
//  4. Engine.Invoke() calls the export with flat uint32 arguments
//
// # Fault Handling
//
// A guest trap surfaces as an error from Invoke and is also recorded as
// the module's pending fault, readable via LastFault until ClearFault is
// called. Retrying callers must clear the pending fault between attempts
// so that each attempt's diagnosis is its own.
//
// # Worker Binding
//
// Engines backed by native runtimes may require per-OS-thread setup before
// a thread may enter guest code. Dispatch workers call BindWorker once at
// startup and UnbindWorker at exit. wazero needs neither, so the
// production implementation treats both as no-ops.
//
// # Thread Safety
//
// WazeroEngine is safe for concurrent use. An ExecContext serializes
// nothing by itself; callers must not invoke concurrently against the
// same context.
package engine
