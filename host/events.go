package host

import (
	"context"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/dispatch"
	"github.com/wippyai/wasm-host/errors"
)

// Post enqueues an event for dispatch. The owner handle must be set but
// is not checked against the registry — an event for a module that is
// gone by dispatch time is discarded by the worker, not rejected here.
// Post never blocks; a full queue is an error.
func (h *Host) Post(e wasmhost.Event) error {
	st, err := h.snapshot(errors.PhaseQueue)
	if err != nil {
		return err
	}
	if !e.Type.Valid() {
		return errors.InvalidArgument(errors.PhaseQueue, "resource type %d out of range", uint32(e.Type))
	}
	if !e.Owner.Valid() {
		return errors.InvalidArgument(errors.PhaseQueue, "event without owning module")
	}

	if err := st.q.Post(e); err != nil {
		h.rejected.Add(1)
		return err
	}
	h.posted.Add(1)
	return nil
}

// PostTimer posts a timer-expiration event owned by owner.
func (h *Host) PostTimer(owner wasmhost.Handle, id uint32) error {
	return h.Post(wasmhost.TimerEvent(owner, id))
}

// PostGPIO posts a pin-transition event owned by owner.
func (h *Host) PostGPIO(owner wasmhost.Handle, pin, state uint32) error {
	return h.Post(wasmhost.GPIOEvent(owner, pin, state))
}

// PostSensor posts a sensor-reading event owned by owner.
func (h *Host) PostSensor(owner wasmhost.Handle, id, channel, value uint32) error {
	return h.Post(wasmhost.SensorEvent(owner, id, channel, value))
}

// PullEvent removes and returns the oldest queued event owned by caller,
// for modules that poll instead of registering dispatchers. Absence of
// events is not an error: the second result is false and the error nil.
func (h *Host) PullEvent(caller wasmhost.Handle) (wasmhost.Event, bool, error) {
	st, err := h.snapshot(errors.PhaseQueue)
	if err != nil {
		return wasmhost.Event{}, false, err
	}
	if !caller.Valid() {
		return wasmhost.Event{}, false, errors.InvalidArgument(errors.PhaseQueue, "empty caller handle")
	}

	e, ok := st.q.TakeOwned(caller)
	return e, ok, nil
}

// CopyEventTo writes an event's fields into the module's linear memory as
// little-endian u32 values at four guest-supplied offsets. Used by the
// guest-facing API to hand a pulled event to the module.
func (h *Host) CopyEventTo(module wasmhost.Handle, e wasmhost.Event, typeOff, idOff, portOff, stateOff uint32) error {
	if _, err := h.snapshot(errors.PhaseEngine); err != nil {
		return err
	}

	mem, ok := h.eng.Memory(module)
	if !ok {
		return errors.NotFound(errors.PhaseEngine, module, "module exports no memory")
	}

	for _, w := range []struct {
		off uint32
		val uint32
	}{
		{typeOff, uint32(e.Type)},
		{idOff, e.ID},
		{portOff, e.Port},
		{stateOff, e.State},
	} {
		if err := mem.WriteU32(w.off, w.val); err != nil {
			return errors.Wrap(errors.PhaseEngine, errors.KindInvalidArgument, err,
				"event field offset outside module memory")
		}
	}
	return nil
}

// CurrentModule reports which module the calling dispatch is executing,
// read from the invocation context. Host functions re-entered from guest
// code use it to identify their caller; outside a dispatch there is none.
func (h *Host) CurrentModule(ctx context.Context) (wasmhost.Handle, bool) {
	return dispatch.Current(ctx)
}
