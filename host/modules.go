package host

import (
	"context"

	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/registry"
)

// RegisterModule creates an execution context for an already-loaded
// module and registers it with the host. The returned context stays valid
// until UnregisterModule or Shutdown.
func (h *Host) RegisterModule(ctx context.Context, module wasmhost.Handle) (*registry.ModuleContext, error) {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return nil, err
	}
	if !module.Valid() {
		return nil, errors.InvalidArgument(errors.PhaseRegistry, "empty module handle")
	}

	ec, err := h.eng.CreateContext(ctx, module)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegistry, errors.KindResourceExhausted, err,
			"create execution context")
	}

	mod, err := st.reg.Register(module, ec)
	if err != nil {
		// The context we just created has no owner; destroy it here so
		// a failed registration leaks nothing.
		if derr := h.eng.DestroyContext(ctx, ec); derr != nil {
			Logger().Error("destroy orphaned execution context",
				zap.String("module", string(module)),
				zap.Error(derr))
		}
		return nil, err
	}

	Logger().Info("module registered",
		zap.String("module", string(module)),
		zap.String("registration", mod.ID()))
	return mod, nil
}

// UnregisterModule removes a module: unlink from the registry, run every
// cleanup handler, destroy the execution context. An unknown handle is
// logged and ignored, matching removal racing with event-driven callers.
func (h *Host) UnregisterModule(ctx context.Context, module wasmhost.Handle) error {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return err
	}

	mod, ok := st.reg.Remove(module)
	if !ok {
		Logger().Debug("unregister: module not found",
			zap.String("module", string(module)))
		return nil
	}

	h.teardown(ctx, st, mod)
	return nil
}

// ModuleContext looks up a live module and advances its last-activity
// timestamp.
func (h *Host) ModuleContext(module wasmhost.Handle) (*registry.ModuleContext, error) {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return nil, err
	}
	mod, ok := st.reg.Get(module)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegistry, module, "module not registered")
	}
	return mod, nil
}

// Modules returns the handles of all live modules.
func (h *Host) Modules() []wasmhost.Handle {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return nil
	}
	return st.reg.Handles()
}

// RegisterDispatcher binds an exported function of the module as its
// dispatcher for one resource type. The function must exist in the
// module's exports at registration time.
func (h *Host) RegisterDispatcher(module wasmhost.Handle, rt wasmhost.ResourceType, function string) error {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return err
	}
	if !rt.Valid() {
		return errors.InvalidArgument(errors.PhaseRegistry, "resource type %d out of range", uint32(rt))
	}
	if function == "" {
		return errors.InvalidArgument(errors.PhaseRegistry, "empty dispatcher name")
	}

	mod, ok := st.reg.Find(module)
	if !ok {
		return errors.NotFound(errors.PhaseRegistry, module, "module not registered")
	}
	fn, ok := h.eng.LookupFunction(module, function)
	if !ok {
		return errors.NotFound(errors.PhaseRegistry, module, "function "+function+" not exported")
	}
	if err := mod.SetDispatcher(rt, fn); err != nil {
		return err
	}

	Logger().Debug("dispatcher registered",
		zap.String("module", string(module)),
		zap.Stringer("type", rt),
		zap.String("function", function))
	return nil
}

// RegisterCleanup installs a process-wide teardown handler for one
// resource type, replacing any previous one. Handlers run for every
// module removal, in resource-type order.
func (h *Host) RegisterCleanup(rt wasmhost.ResourceType, fn registry.CleanupFunc) error {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return err
	}
	return st.cleanup.Register(rt, fn)
}

// IncResource bumps a module's counter for one resource type. Unknown
// modules and invalid types are ignored.
func (h *Host) IncResource(module wasmhost.Handle, rt wasmhost.ResourceType) error {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return err
	}
	if mod, ok := st.reg.Find(module); ok {
		mod.IncResource(rt)
	}
	return nil
}

// DecResource lowers a module's counter for one resource type, saturating
// at zero. Unknown modules and invalid types are ignored.
func (h *Host) DecResource(module wasmhost.Handle, rt wasmhost.ResourceType) error {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return err
	}
	if mod, ok := st.reg.Find(module); ok {
		mod.DecResource(rt)
	}
	return nil
}

// ResourceCount reports a module's counter for one resource type; zero
// when the module is unknown, the type invalid, or the host not running.
func (h *Host) ResourceCount(module wasmhost.Handle, rt wasmhost.ResourceType) uint32 {
	st, err := h.snapshot(errors.PhaseRegistry)
	if err != nil {
		return 0
	}
	mod, ok := st.reg.Find(module)
	if !ok {
		return 0
	}
	return mod.ResourceCount(rt)
}
