package registry

import (
	"sync"

	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// CleanupFunc releases a module's outstanding resources of one type. It is
// called with the handle of the module being removed.
type CleanupFunc func(module wasmhost.Handle)

// CleanupTable maps each resource type to at most one teardown handler.
// The table is process-wide: registration happens at setup time, Run at
// every module removal. It never grows past the fixed resource-type set.
type CleanupTable struct {
	mu       sync.Mutex
	handlers [wasmhost.NumResourceTypes]CleanupFunc
}

// NewCleanupTable creates an empty table.
func NewCleanupTable() *CleanupTable {
	return &CleanupTable{}
}

// Register installs the handler for one resource type. The last
// registration for a type wins.
func (t *CleanupTable) Register(rt wasmhost.ResourceType, fn CleanupFunc) error {
	if !rt.Valid() {
		return errors.InvalidArgument(errors.PhaseRegistry, "cleanup type %d out of range", uint32(rt))
	}
	if fn == nil {
		return errors.InvalidArgument(errors.PhaseRegistry, "nil cleanup handler for %s", rt)
	}
	t.mu.Lock()
	t.handlers[rt] = fn
	t.mu.Unlock()
	return nil
}

// Reset drops every handler.
func (t *CleanupTable) Reset() {
	t.mu.Lock()
	t.handlers = [wasmhost.NumResourceTypes]CleanupFunc{}
	t.mu.Unlock()
}

// Run invokes every registered handler with the module's handle, in
// resource-type order. Absent handlers are skipped. A panicking handler is
// contained and logged; the remaining handlers still run.
func (t *CleanupTable) Run(module wasmhost.Handle) {
	for rt := wasmhost.ResourceType(0); rt.Valid(); rt++ {
		t.mu.Lock()
		fn := t.handlers[rt]
		t.mu.Unlock()
		if fn == nil {
			continue
		}
		runCleanup(rt, module, fn)
	}
}

func runCleanup(rt wasmhost.ResourceType, module wasmhost.Handle, fn CleanupFunc) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("cleanup handler panicked",
				zap.String("module", string(module)),
				zap.Stringer("type", rt),
				zap.Any("panic", r))
		}
	}()
	fn(module)
}
