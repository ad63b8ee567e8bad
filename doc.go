// Package wasmhost is the coordination core of an embedded container host
// that runs multiple independently-loaded WebAssembly modules and routes
// hardware-originated events (timer expirations, GPIO transitions, sensor
// readings) into each module's registered dispatcher.
//
// # Architecture Overview
//
// The library is organized into small packages with one responsibility each:
//
//	wasmhost/            Root package: Handle, ResourceType, Event, Memory
//	├── host/            High-level API: lifecycle, registration, posting
//	├── engine/          Execution-engine boundary and the wazero adapter
//	├── registry/        Module registry, resource ledger, cleanup handlers
//	├── queue/           Bounded FIFO event buffer
//	├── dispatch/        Worker pool delivering events into modules
//	├── hostapi/         Guest-callable host functions (wazero host module)
//	└── errors/          Structured error types
//
// # Quick Start
//
//	ctx := context.Background()
//	eng, err := engine.NewWazeroEngine(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h := host.New(eng, nil)
//	if err := h.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Shutdown(ctx)
//
//	// Load a module into the engine, register it with the host.
//	if err := eng.LoadModule(ctx, "blinky", wasmBytes); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := h.RegisterModule(ctx, "blinky"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := h.RegisterDispatcher("blinky", wasmhost.ResourceGPIO, "on_gpio"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// A driver posts; a pool worker invokes blinky's on_gpio(pin, state).
//	h.Post(wasmhost.GPIOEvent("blinky", 3, 1))
//
// # Event Flow
//
// Producers (drivers, host calls) build an Event and post it to the bounded
// queue; posting never blocks and fails with a resource-exhausted error when
// the queue is full. A fixed pool of workers drains the queue in batches,
// resolves each event's owning module through the registry, and invokes the
// module's dispatcher for that resource type through the engine, retrying a
// bounded number of times when the engine reports a fault. A module that
// keeps faulting loses that event; other modules and workers are unaffected.
//
// Events posted by one producer are dispatched in posting order. Events for
// the same module may be drained by different workers; invocations into a
// single module are serialized, because engine execution contexts are not
// assumed reentrant-safe across threads.
//
// # Module Lifecycle
//
// Registering a module creates an engine execution context owned by the
// host. Unregistering (or host shutdown) runs every registered cleanup
// handler against the module, then destroys the execution context exactly
// once. All state is in-memory and process-scoped; nothing persists.
package wasmhost
