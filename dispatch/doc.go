// Package dispatch runs the worker pool that delivers queued events into
// module dispatchers.
//
// # Worker Loop
//
// Each worker cycles Idle → Draining → Dispatching → Idle. While idle it
// blocks on the queue's wake channel or the stop signal. On wake it
// drains batches until the queue is empty, dispatching each event in
// order, then goes back to waiting. The stop signal is observed between
// batches and while idle, never mid-batch; shutting down lets in-flight
// events finish their retry bound and leaves undrained events in the
// queue for the host to drop.
//
// # Delivery
//
// For each event the worker resolves the owning module and its dispatcher
// for the event's type; either missing discards the event with a log
// line, since modules legitimately unregister while events for them are
// in flight. Delivery itself is serialized per module: the worker holds
// the module's call lock around the invocation, re-checking liveness
// after acquiring it, so at most one worker is ever inside a given
// execution context and teardown can never interleave with a call.
//
// A faulting invocation is retried up to the configured bound with the
// engine's fault state cleared between attempts. Exhausting the bound
// fails the event — counted and logged — without affecting other events
// or modules.
//
// # Current-Module Marker
//
// While dispatching, a worker marks the target module in two places: a
// per-worker table readable via Pool.CurrentModules for monitoring, and
// the invocation context via WithCurrent so host functions re-entered
// from guest code can identify their caller with Current. The marker is
// per worker; two workers dispatching different modules see only their
// own.
package dispatch
