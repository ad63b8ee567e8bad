// Package hostapi exposes the host's management surface to guest modules
// as a wazero host module.
//
// Guests link against the ModuleName namespace and call:
//
//	register_dispatcher(type, name_ptr, name_len) -> errno
//	get_event(type_off, id_off, port_off, state_off) -> errno
//	post_event(type, id, port, state) -> errno
//	get_resource_count(type) -> count
//
// Every call runs on behalf of the guest that made it: the caller is
// resolved from the dispatch marker when inside a dispatch, and from the
// instance name otherwise. Results follow the embedded errno convention,
// zero on success and a small negative code on failure.
package hostapi

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/dispatch"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
)

// ModuleName is the import namespace guests link against.
const ModuleName = "wasmhost"

// Guest-visible result codes.
const (
	ErrnoOK        int32 = 0
	ErrnoInvalid   int32 = -1
	ErrnoNoEntry   int32 = -2
	ErrnoExhausted int32 = -3
	ErrnoNotReady  int32 = -4
)

// API binds one Host to the guest-facing function table.
type API struct {
	host *host.Host
}

// Register instantiates the guest-facing host module on r. It must run
// before any guest module importing ModuleName is loaded, or the guest's
// imports will not resolve.
func Register(ctx context.Context, r wazero.Runtime, h *host.Host) (api.Module, error) {
	a := &API{host: h}

	i32 := api.ValueTypeI32
	builder := r.NewHostModuleBuilder(ModuleName)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(a.registerDispatcher),
			[]api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("register_dispatcher")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(a.getEvent),
			[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("get_event")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(a.postEvent),
			[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("post_event")
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(a.resourceCount),
			[]api.ValueType{i32}, []api.ValueType{i32}).
		Export("get_resource_count")

	return builder.Instantiate(ctx)
}

// caller resolves the guest the current call executes on behalf of.
func caller(ctx context.Context, mod api.Module) wasmhost.Handle {
	if h, ok := dispatch.Current(ctx); ok {
		return h
	}
	return wasmhost.Handle(mod.Name())
}

func errno(err error) int32 {
	switch {
	case err == nil:
		return ErrnoOK
	case errors.IsNotFound(err):
		return ErrnoNoEntry
	case errors.IsExhausted(err):
		return ErrnoExhausted
	case errors.IsNotInitialized(err):
		return ErrnoNotReady
	default:
		return ErrnoInvalid
	}
}

// registerDispatcher implements register_dispatcher. The dispatcher name
// is read out of the caller's linear memory.
func (a *API) registerDispatcher(ctx context.Context, mod api.Module, stack []uint64) {
	rt := wasmhost.ResourceType(api.DecodeU32(stack[0]))
	namePtr := api.DecodeU32(stack[1])
	nameLen := api.DecodeU32(stack[2])

	mem := mod.Memory()
	if mem == nil {
		stack[0] = api.EncodeI32(ErrnoInvalid)
		return
	}
	name, ok := mem.Read(namePtr, nameLen)
	if !ok {
		stack[0] = api.EncodeI32(ErrnoInvalid)
		return
	}

	err := a.host.RegisterDispatcher(caller(ctx, mod), rt, string(name))
	stack[0] = api.EncodeI32(errno(err))
}

// getEvent implements get_event: the oldest event owned by the caller is
// written into its memory as four little-endian u32 fields. Offsets are
// validated before the event is consumed, so a bad call never loses one.
func (a *API) getEvent(ctx context.Context, mod api.Module, stack []uint64) {
	typeOff := api.DecodeU32(stack[0])
	idOff := api.DecodeU32(stack[1])
	portOff := api.DecodeU32(stack[2])
	stateOff := api.DecodeU32(stack[3])

	mem := mod.Memory()
	if mem == nil {
		stack[0] = api.EncodeI32(ErrnoInvalid)
		return
	}
	for _, off := range [...]uint32{typeOff, idOff, portOff, stateOff} {
		if uint64(off)+4 > uint64(mem.Size()) {
			stack[0] = api.EncodeI32(ErrnoInvalid)
			return
		}
	}

	who := caller(ctx, mod)
	e, found, err := a.host.PullEvent(who)
	if err != nil {
		stack[0] = api.EncodeI32(errno(err))
		return
	}
	if !found {
		stack[0] = api.EncodeI32(ErrnoNoEntry)
		return
	}
	stack[0] = api.EncodeI32(errno(a.host.CopyEventTo(who, e, typeOff, idOff, portOff, stateOff)))
}

// postEvent implements post_event, with the caller as the event's owner.
// Fields the type does not carry are ignored.
func (a *API) postEvent(ctx context.Context, mod api.Module, stack []uint64) {
	rt := wasmhost.ResourceType(api.DecodeU32(stack[0]))
	id := api.DecodeU32(stack[1])
	port := api.DecodeU32(stack[2])
	state := api.DecodeU32(stack[3])

	who := caller(ctx, mod)
	var err error
	switch rt {
	case wasmhost.ResourceTimer:
		err = a.host.PostTimer(who, id)
	case wasmhost.ResourceGPIO:
		err = a.host.PostGPIO(who, id, state)
	case wasmhost.ResourceSensor:
		err = a.host.PostSensor(who, id, port, state)
	default:
		stack[0] = api.EncodeI32(ErrnoInvalid)
		return
	}
	stack[0] = api.EncodeI32(errno(err))
}

// resourceCount implements get_resource_count. Unknown callers and
// invalid types count zero.
func (a *API) resourceCount(ctx context.Context, mod api.Module, stack []uint64) {
	rt := wasmhost.ResourceType(api.DecodeU32(stack[0]))
	stack[0] = api.EncodeU32(a.host.ResourceCount(caller(ctx, mod), rt))
}
