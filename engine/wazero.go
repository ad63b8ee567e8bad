package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
)

// WazeroEngine implements Engine using the wazero runtime.
//
// Modules are loaded once with LoadModule and stay resident until
// UnloadModule or Close; execution contexts created for them are cheap
// handles onto the resident instance, so a module can be unregistered and
// re-registered without reloading. wazero is pure Go, so worker binding is
// a no-op; the contract still applies to callers so that native-runtime
// engines can be swapped in.
type WazeroEngine struct {
	runtime      wazero.Runtime
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool

	mu      sync.RWMutex
	modules map[wasmhost.Handle]*wazeroModule
}

type wazeroModule struct {
	instance api.Module

	faultMu   sync.Mutex
	lastFault string
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB
	// each). 0 means the wazero default.
	MemoryLimitPages uint32
}

// NewWazeroEngine creates a new wazero-based engine.
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration.
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{
		runtime: runtime,
		modules: make(map[wasmhost.Handle]*wazeroModule),
	}, nil
}

// Runtime exposes the underlying wazero runtime so host-function modules
// can be registered against it before guests are loaded.
func (e *WazeroEngine) Runtime() wazero.Runtime {
	return e.runtime
}

// InitWASI instantiates the WASI preview1 host module for guests compiled
// against it. Safe to call more than once; only the first call does work.
// Must be called before LoadModule for modules that import WASI.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return fmt.Errorf("instantiate wasi: %w", err)
	}
	e.wasiInitDone.Store(true)
	return nil
}

// LoadModule compiles and instantiates a guest module under the given
// handle. Start functions are not run automatically; if the module exports
// the reactor-style "_initialize" it is called once here, before any
// dispatch can target the module.
func (e *WazeroEngine) LoadModule(ctx context.Context, module wasmhost.Handle, wasmBytes []byte) error {
	if !module.Valid() {
		return fmt.Errorf("invalid module handle")
	}

	e.mu.Lock()
	if _, exists := e.modules[module]; exists {
		e.mu.Unlock()
		return fmt.Errorf("module %q already loaded", module)
	}
	e.mu.Unlock()

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("compile %q: %w", module, err)
	}

	instance, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(string(module)).WithStartFunctions())
	if err != nil {
		return fmt.Errorf("instantiate %q: %w", module, err)
	}

	if init := instance.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = instance.Close(ctx)
			return fmt.Errorf("initialize %q: %w", module, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.modules[module]; exists {
		// Lost a load race for the same handle; keep the winner.
		_ = instance.Close(ctx)
		return fmt.Errorf("module %q already loaded", module)
	}
	e.modules[module] = &wazeroModule{instance: instance}

	Logger().Debug("module loaded",
		zap.String("module", string(module)),
		zap.Int("size", len(wasmBytes)))
	return nil
}

// UnloadModule closes the guest instance and forgets the handle.
func (e *WazeroEngine) UnloadModule(ctx context.Context, module wasmhost.Handle) error {
	e.mu.Lock()
	m, ok := e.modules[module]
	delete(e.modules, module)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("module %q not loaded", module)
	}
	return m.instance.Close(ctx)
}

// Exports returns the sorted export names of a loaded module.
func (e *WazeroEngine) Exports(module wasmhost.Handle) []string {
	m, ok := e.lookup(module)
	if !ok {
		return nil
	}

	defs := m.instance.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *WazeroEngine) lookup(module wasmhost.Handle) (*wazeroModule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.modules[module]
	return m, ok
}

// CreateContext implements Engine.
func (e *WazeroEngine) CreateContext(_ context.Context, module wasmhost.Handle) (ExecContext, error) {
	m, ok := e.lookup(module)
	if !ok {
		return nil, fmt.Errorf("module %q not loaded", module)
	}
	return &wazeroExecContext{module: module, mod: m}, nil
}

// DestroyContext implements Engine.
func (e *WazeroEngine) DestroyContext(_ context.Context, ec ExecContext) error {
	wec, ok := ec.(*wazeroExecContext)
	if !ok {
		return fmt.Errorf("foreign execution context %T", ec)
	}
	if !wec.destroyed.CompareAndSwap(false, true) {
		return fmt.Errorf("context for %q already destroyed", wec.module)
	}
	return nil
}

// LookupFunction implements Engine.
func (e *WazeroEngine) LookupFunction(module wasmhost.Handle, name string) (Function, bool) {
	m, ok := e.lookup(module)
	if !ok {
		return nil, false
	}
	fn := m.instance.ExportedFunction(name)
	if fn == nil {
		return nil, false
	}
	return &wazeroFunction{name: name, fn: fn}, true
}

// Invoke implements Engine. A trap inside the guest is recorded as the
// module's pending fault and returned as the error.
func (e *WazeroEngine) Invoke(ctx context.Context, ec ExecContext, fn Function, args []uint32) error {
	wec, ok := ec.(*wazeroExecContext)
	if !ok {
		return fmt.Errorf("foreign execution context %T", ec)
	}
	wfn, ok := fn.(*wazeroFunction)
	if !ok {
		return fmt.Errorf("foreign function reference %T", fn)
	}
	if wec.destroyed.Load() {
		return fmt.Errorf("context for %q destroyed", wec.module)
	}

	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = uint64(a)
	}

	if _, err := wfn.fn.Call(ctx, params...); err != nil {
		wec.mod.setFault(err.Error())
		return err
	}
	return nil
}

// LastFault implements Engine.
func (e *WazeroEngine) LastFault(module wasmhost.Handle) string {
	m, ok := e.lookup(module)
	if !ok {
		return ""
	}
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	return m.lastFault
}

// ClearFault implements Engine.
func (e *WazeroEngine) ClearFault(module wasmhost.Handle) {
	m, ok := e.lookup(module)
	if !ok {
		return
	}
	m.faultMu.Lock()
	m.lastFault = ""
	m.faultMu.Unlock()
}

// Memory implements Engine.
func (e *WazeroEngine) Memory(module wasmhost.Handle) (wasmhost.Memory, bool) {
	m, ok := e.lookup(module)
	if !ok {
		return nil, false
	}
	mem := m.instance.Memory()
	if mem == nil {
		return nil, false
	}
	return wazeroMemory{mem: mem}, true
}

// BindWorker implements Engine. wazero needs no per-thread state.
func (e *WazeroEngine) BindWorker() error { return nil }

// UnbindWorker implements Engine.
func (e *WazeroEngine) UnbindWorker() {}

// Close releases the runtime and every loaded module.
func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.modules = make(map[wasmhost.Handle]*wazeroModule)
	e.mu.Unlock()
	return e.runtime.Close(ctx)
}

func (m *wazeroModule) setFault(fault string) {
	m.faultMu.Lock()
	m.lastFault = fault
	m.faultMu.Unlock()
}

type wazeroExecContext struct {
	module    wasmhost.Handle
	mod       *wazeroModule
	destroyed atomic.Bool
}

func (c *wazeroExecContext) Module() wasmhost.Handle { return c.module }

type wazeroFunction struct {
	name string
	fn   api.Function
}

func (f *wazeroFunction) Name() string { return f.name }

// wazeroMemory adapts api.Memory to the host's Memory interface. Reads
// return a direct view of guest memory, valid until the next guest call.
type wazeroMemory struct {
	mem api.Memory
}

func (m wazeroMemory) Read(offset, length uint32) ([]byte, error) {
	b, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of range: offset=%d len=%d", offset, length)
	}
	return b, nil
}

func (m wazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of range: offset=%d len=%d", offset, len(data))
	}
	return nil
}

func (m wazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of range: offset=%d", offset)
	}
	return v, nil
}

func (m wazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of range: offset=%d", offset)
	}
	return nil
}

var (
	_ Engine          = (*WazeroEngine)(nil)
	_ wasmhost.Memory = wazeroMemory{}
)
