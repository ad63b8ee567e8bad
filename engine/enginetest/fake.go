// Package enginetest provides a scripted in-memory Engine for tests.
//
// The fake records every call against it and lets tests inject faults at
// any point of the engine boundary: context creation, worker binding, and
// individual invocations. Tests load a module, script its exported
// functions, and hand the engine to the code under test:
//
//	eng := enginetest.New()
//	mod := eng.Load("blinky")
//	mod.Func("on_timer").FailFirst(2, "unreachable")
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/engine"
)

// Engine is a scripted engine.Engine implementation. The zero value is not
// usable; construct with New.
type Engine struct {
	mu      sync.Mutex
	modules map[wasmhost.Handle]*Module

	// CreateErr, when set, fails every CreateContext call.
	CreateErr error

	// BindFailAt, when >0, fails the Nth BindWorker call (1-based) and
	// every call after it. Set before handing the engine to workers.
	BindFailAt int32

	bindAttempts atomic.Int32
	bound        atomic.Int32
	unbound      atomic.Int32
}

// New creates an empty fake engine.
func New() *Engine {
	return &Engine{modules: make(map[wasmhost.Handle]*Module)}
}

// Load registers a module under the handle and returns its script. Loading
// the same handle twice returns the existing module.
func (e *Engine) Load(module wasmhost.Handle) *Module {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.modules[module]; ok {
		return m
	}
	m := &Module{handle: module, funcs: make(map[string]*Func)}
	e.modules[module] = m
	return m
}

func (e *Engine) lookup(module wasmhost.Handle) (*Module, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.modules[module]
	return m, ok
}

// BoundWorkers reports how many BindWorker calls succeeded.
func (e *Engine) BoundWorkers() int32 { return e.bound.Load() }

// UnboundWorkers reports how many UnbindWorker calls were made.
func (e *Engine) UnboundWorkers() int32 { return e.unbound.Load() }

// CreateContext implements engine.Engine.
func (e *Engine) CreateContext(_ context.Context, module wasmhost.Handle) (engine.ExecContext, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	m, ok := e.lookup(module)
	if !ok {
		return nil, fmt.Errorf("module %q not loaded", module)
	}
	return &execContext{module: module, mod: m}, nil
}

// DestroyContext implements engine.Engine. Destroying a context twice is
// an error so tests can prove teardown runs exactly once.
func (e *Engine) DestroyContext(_ context.Context, ec engine.ExecContext) error {
	fec, ok := ec.(*execContext)
	if !ok {
		return fmt.Errorf("foreign execution context %T", ec)
	}
	if !fec.destroyed.CompareAndSwap(false, true) {
		return fmt.Errorf("context for %q already destroyed", fec.module)
	}
	fec.mod.destroys.Add(1)
	return nil
}

// LookupFunction implements engine.Engine. Only functions scripted via
// Module.Func resolve.
func (e *Engine) LookupFunction(module wasmhost.Handle, name string) (engine.Function, bool) {
	m, ok := e.lookup(module)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.funcs[name]
	return f, ok
}

// Invoke implements engine.Engine.
func (e *Engine) Invoke(ctx context.Context, ec engine.ExecContext, fn engine.Function, args []uint32) error {
	fec, ok := ec.(*execContext)
	if !ok {
		return fmt.Errorf("foreign execution context %T", ec)
	}
	ffn, ok := fn.(*Func)
	if !ok {
		return fmt.Errorf("foreign function reference %T", fn)
	}
	if fec.destroyed.Load() {
		return fmt.Errorf("context for %q destroyed", fec.module)
	}
	return ffn.call(ctx, args)
}

// LastFault implements engine.Engine.
func (e *Engine) LastFault(module wasmhost.Handle) string {
	m, ok := e.lookup(module)
	if !ok {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault
}

// ClearFault implements engine.Engine.
func (e *Engine) ClearFault(module wasmhost.Handle) {
	m, ok := e.lookup(module)
	if !ok {
		return
	}
	m.mu.Lock()
	m.fault = ""
	m.clears++
	m.mu.Unlock()
}

// Memory implements engine.Engine. Returns a memory only after
// Module.SetMemory.
func (e *Engine) Memory(module wasmhost.Handle) (wasmhost.Memory, bool) {
	m, ok := e.lookup(module)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mem == nil {
		return nil, false
	}
	return m.mem, true
}

// BindWorker implements engine.Engine.
func (e *Engine) BindWorker() error {
	n := e.bindAttempts.Add(1)
	if at := e.BindFailAt; at > 0 && n >= at {
		return fmt.Errorf("bind worker %d failed", n)
	}
	e.bound.Add(1)
	return nil
}

// UnbindWorker implements engine.Engine.
func (e *Engine) UnbindWorker() { e.unbound.Add(1) }

// Module scripts one loaded module.
type Module struct {
	handle wasmhost.Handle

	mu     sync.Mutex
	funcs  map[string]*Func
	fault  string
	clears int
	mem    *Memory

	destroys atomic.Int32
}

// Func returns the script for an exported function, creating it on first
// use. A function that is never scripted does not resolve via
// LookupFunction.
func (m *Module) Func(name string) *Func {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.funcs[name]; ok {
		return f
	}
	f := &Func{name: name, mod: m}
	m.funcs[name] = f
	return f
}

// SetMemory gives the module a linear memory of the given size.
func (m *Module) SetMemory(size uint32) *Memory {
	mem := &Memory{data: make([]byte, size)}
	m.mu.Lock()
	m.mem = mem
	m.mu.Unlock()
	return mem
}

// Destroys reports how many times the module's context was destroyed.
func (m *Module) Destroys() int32 { return m.destroys.Load() }

// FaultClears reports how many times ClearFault ran against the module.
func (m *Module) FaultClears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

func (m *Module) setFault(fault string) {
	m.mu.Lock()
	m.fault = fault
	m.mu.Unlock()
}

// Func scripts one exported function and records calls against it.
type Func struct {
	name string
	mod  *Module

	mu       sync.Mutex
	calls    [][]uint32
	failLeft int
	fault    string
	hook     func(ctx context.Context, args []uint32) error
}

// Name implements engine.Function.
func (f *Func) Name() string { return f.name }

// FailFirst makes the next n calls trap with the given fault text.
func (f *Func) FailFirst(n int, fault string) *Func {
	f.mu.Lock()
	f.failLeft = n
	f.fault = fault
	f.mu.Unlock()
	return f
}

// FailAlways makes every call trap with the given fault text.
func (f *Func) FailAlways(fault string) *Func {
	f.mu.Lock()
	f.failLeft = -1
	f.fault = fault
	f.mu.Unlock()
	return f
}

// OnCall installs a hook that runs inside every invocation with the
// invocation context, before the scripted failure check. A non-nil hook
// error traps the call.
func (f *Func) OnCall(hook func(ctx context.Context, args []uint32) error) *Func {
	f.mu.Lock()
	f.hook = hook
	f.mu.Unlock()
	return f
}

// Calls reports how many times the function ran.
func (f *Func) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Args returns the arguments of call i, zero-based.
func (f *Func) Args(i int) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.calls) {
		return nil
	}
	return f.calls[i]
}

func (f *Func) call(ctx context.Context, args []uint32) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]uint32(nil), args...))
	hook := f.hook
	fail := f.failLeft != 0
	if f.failLeft > 0 {
		f.failLeft--
	}
	fault := f.fault
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, args); err != nil {
			f.mod.setFault(err.Error())
			return err
		}
	}
	if fail {
		if fault == "" {
			fault = "wasm trap: unreachable"
		}
		f.mod.setFault(fault)
		return fmt.Errorf("call %s: %s", f.name, fault)
	}
	return nil
}

type execContext struct {
	module    wasmhost.Handle
	mod       *Module
	destroyed atomic.Bool
}

func (c *execContext) Module() wasmhost.Handle { return c.module }

// Memory is a byte-slice wasmhost.Memory with little-endian u32 access.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int64(offset)+int64(length) > int64(len(m.data)) {
		return nil, fmt.Errorf("memory read out of range: offset=%d len=%d", offset, length)
	}
	out := make([]byte, length)
	copy(out, m.data[offset:])
	return out, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int64(offset)+int64(len(data)) > int64(len(m.data)) {
		return fmt.Errorf("memory write out of range: offset=%d len=%d", offset, len(data))
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	return m.Write(offset, []byte{
		byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24),
	})
}

var (
	_ engine.Engine   = (*Engine)(nil)
	_ engine.Function = (*Func)(nil)
	_ wasmhost.Memory = (*Memory)(nil)
)
