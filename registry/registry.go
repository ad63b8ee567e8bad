package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
)

// ModuleContext is the host-side state of one registered module: its
// execution context, per-type dispatchers, resource counters and activity
// timestamp.
//
// Three locks are in play and never nest the wrong way. The registry's
// lock guards membership only. The context's field lock (mu) guards the
// mutable fields and is always inner relative to the registry lock. The
// call lock serializes entry into the execution context — dispatch holds
// it around an invocation, teardown holds it around destruction — and is
// taken only while holding neither of the other two.
type ModuleContext struct {
	handle wasmhost.Handle
	id     string
	exec   engine.ExecContext

	inUse atomic.Bool

	mu           sync.Mutex
	dispatchers  [wasmhost.NumResourceTypes]engine.Function
	resources    [wasmhost.NumResourceTypes]uint32
	lastActivity time.Time

	callMu sync.Mutex
}

// Handle returns the module's registry key.
func (c *ModuleContext) Handle() wasmhost.Handle { return c.handle }

// ID returns the registration identity. It is unique per registration, so
// re-registering the same handle yields a context with a different ID.
func (c *ModuleContext) ID() string { return c.id }

// Exec returns the engine execution context owned by this registration.
func (c *ModuleContext) Exec() engine.ExecContext { return c.exec }

// InUse reports whether the module is still live. It turns false the
// moment removal begins and never turns true again for this context.
func (c *ModuleContext) InUse() bool { return c.inUse.Load() }

// SetDispatcher installs the dispatcher for one resource type, replacing
// any prior one.
func (c *ModuleContext) SetDispatcher(t wasmhost.ResourceType, fn engine.Function) error {
	if !t.Valid() {
		return errors.InvalidArgument(errors.PhaseRegistry, "resource type %d out of range", uint32(t))
	}
	if fn == nil {
		return errors.InvalidArgument(errors.PhaseRegistry, "nil dispatcher for %s", t)
	}
	c.mu.Lock()
	c.dispatchers[t] = fn
	c.mu.Unlock()
	return nil
}

// Dispatcher returns the dispatcher registered for t, if any.
func (c *ModuleContext) Dispatcher(t wasmhost.ResourceType) (engine.Function, bool) {
	if !t.Valid() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fn := c.dispatchers[t]
	return fn, fn != nil
}

// IncResource bumps the counter for t. Invalid types are ignored.
func (c *ModuleContext) IncResource(t wasmhost.ResourceType) {
	if !t.Valid() {
		return
	}
	c.mu.Lock()
	c.resources[t]++
	c.mu.Unlock()
}

// DecResource lowers the counter for t, saturating at zero. Invalid types
// are ignored.
func (c *ModuleContext) DecResource(t wasmhost.ResourceType) {
	if !t.Valid() {
		return
	}
	c.mu.Lock()
	if c.resources[t] > 0 {
		c.resources[t]--
	}
	c.mu.Unlock()
}

// ResourceCount returns the counter for t, 0 for invalid types.
func (c *ModuleContext) ResourceCount(t wasmhost.ResourceType) uint32 {
	if !t.Valid() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources[t]
}

// Touch advances the module's last-activity timestamp.
func (c *ModuleContext) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the most recent registration, lookup or successful
// dispatch time.
func (c *ModuleContext) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// LockCall acquires exclusive entry into the module's execution context.
// At most one goroutine may be inside the context at a time; dispatch
// wraps each invocation in LockCall/UnlockCall and teardown does the same
// around context destruction, so destruction waits out any in-flight call.
//
// Callers must re-check InUse after acquiring: a false result means
// removal won the lock first and the context must not be entered.
func (c *ModuleContext) LockCall() { c.callMu.Lock() }

// UnlockCall releases the call lock.
func (c *ModuleContext) UnlockCall() { c.callMu.Unlock() }

// Registry maps live module handles to their contexts. Structural changes
// and lookups serialize on the registry lock; everything inside a context
// has its own finer locks.
type Registry struct {
	mu      sync.Mutex
	modules map[wasmhost.Handle]*ModuleContext
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{modules: make(map[wasmhost.Handle]*ModuleContext)}
}

// Register inserts a new context for handle, taking ownership of exec.
// The caller remains responsible for destroying exec if registration
// fails.
func (r *Registry) Register(handle wasmhost.Handle, exec engine.ExecContext) (*ModuleContext, error) {
	if !handle.Valid() {
		return nil, errors.InvalidArgument(errors.PhaseRegistry, "empty module handle")
	}
	if exec == nil {
		return nil, errors.InvalidArgument(errors.PhaseRegistry, "nil execution context for %s", handle)
	}

	ctx := &ModuleContext{
		handle:       handle,
		id:           uuid.NewString(),
		exec:         exec,
		lastActivity: time.Now(),
	}
	ctx.inUse.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[handle]; exists {
		return nil, errors.AlreadyRegistered(handle)
	}
	r.modules[handle] = ctx
	return ctx, nil
}

// Remove unlinks handle from the registry and marks its context no longer
// in use, both under the registry lock, so no lookup can return the
// context once removal has begun. The context itself is returned so the
// caller can run teardown (cleanup handlers, context destruction) outside
// the registry lock.
func (r *Registry) Remove(handle wasmhost.Handle) (*ModuleContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.modules[handle]
	if !ok {
		return nil, false
	}
	delete(r.modules, handle)
	ctx.inUse.Store(false)
	return ctx, true
}

// Find returns the live context for handle without touching its activity
// timestamp.
func (r *Registry) Find(handle wasmhost.Handle) (*ModuleContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.modules[handle]
	return ctx, ok
}

// Get returns the live context for handle and advances its last-activity
// timestamp. The timestamp update happens after the registry lock is
// released; lock order is registry then context, never both held across
// the other's acquisition elsewhere.
func (r *Registry) Get(handle wasmhost.Handle) (*ModuleContext, bool) {
	ctx, ok := r.Find(handle)
	if !ok {
		return nil, false
	}
	ctx.Touch()
	return ctx, true
}

// Handles returns a snapshot of the live module handles.
func (r *Registry) Handles() []wasmhost.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wasmhost.Handle, 0, len(r.modules))
	for h := range r.modules {
		out = append(out, h)
	}
	return out
}

// Len reports the number of live modules.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modules)
}
