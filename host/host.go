package host

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/dispatch"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/queue"
	"github.com/wippyai/wasm-host/registry"
)

// Config holds host configuration. The zero value of any field means its
// default.
type Config struct {
	// QueueCapacity bounds the event queue depth.
	QueueCapacity int
	// Dispatch configures the worker pool.
	Dispatch dispatch.Config
}

// runState bundles everything that exists only while the host runs. Start
// builds a fresh one; Shutdown detaches it and tears it down.
type runState struct {
	reg     *registry.Registry
	cleanup *registry.CleanupTable
	q       *queue.Queue
	pool    *dispatch.Pool
}

// Host owns the module registry, event queue, worker pool and cleanup
// table, and exposes the management and producer surfaces over them. All
// methods are safe for concurrent use.
type Host struct {
	eng engine.Engine
	cfg Config

	mu sync.Mutex
	st *runState

	posted   atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a host over the given engine. A nil config uses defaults.
// The host is inert until Start.
func New(eng engine.Engine, cfg *Config) *Host {
	h := &Host{eng: eng}
	if cfg != nil {
		h.cfg = *cfg
	}
	return h
}

// Start brings the host up: a fresh registry, cleanup table and event
// queue, and a running worker pool. Idempotent — a second Start while
// running returns nil. If any worker fails to start, everything rolls
// back and the host stays down.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.st != nil {
		return nil
	}

	st := &runState{
		reg:     registry.New(),
		cleanup: registry.NewCleanupTable(),
		q:       queue.New(h.cfg.QueueCapacity),
	}
	st.pool = dispatch.New(h.eng, st.reg, st.q, &h.cfg.Dispatch)

	if err := st.pool.Start(); err != nil {
		return err
	}

	h.st = st
	Logger().Info("host started",
		zap.Int("queue_capacity", st.q.Cap()))
	return nil
}

// Shutdown stops the worker pool, waits for in-flight dispatches, then
// sweeps the registry with full unregister semantics — cleanup handlers,
// then execution-context destruction, exactly once per module. Events
// still queued are dropped. Idempotent — a no-op when not running.
func (h *Host) Shutdown(ctx context.Context) {
	h.mu.Lock()
	st := h.st
	h.st = nil
	h.mu.Unlock()
	if st == nil {
		return
	}

	st.pool.Stop()

	swept := 0
	for _, handle := range st.reg.Handles() {
		mod, ok := st.reg.Remove(handle)
		if !ok {
			continue
		}
		h.teardown(ctx, st, mod)
		swept++
	}

	dropped := st.q.Reset()
	h.dropped.Add(uint64(dropped))

	Logger().Info("host shut down",
		zap.Int("modules_swept", swept),
		zap.Int("events_dropped", dropped))
}

// Running reports whether the host has been started and not yet shut
// down.
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.st != nil
}

// snapshot returns the live run state, or a not-initialized error tagged
// with the caller's phase.
func (h *Host) snapshot(phase errors.Phase) (*runState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.st == nil {
		return nil, errors.NotInitialized(phase)
	}
	return h.st, nil
}

// teardown finishes removing a module that is already unlinked from the
// registry: wait out any in-flight dispatch, run the cleanup handlers,
// destroy the execution context. Call-lock acquisition makes destruction
// impossible to interleave with an invocation, and registry removal makes
// it impossible to reach the module again, so the context is destroyed
// exactly once.
func (h *Host) teardown(ctx context.Context, st *runState, mod *registry.ModuleContext) {
	mod.LockCall()
	defer mod.UnlockCall()

	st.cleanup.Run(mod.Handle())

	if err := h.eng.DestroyContext(ctx, mod.Exec()); err != nil {
		Logger().Error("destroy execution context",
			zap.String("module", string(mod.Handle())),
			zap.Error(err))
		return
	}
	Logger().Info("module unregistered",
		zap.String("module", string(mod.Handle())),
		zap.String("registration", mod.ID()))
}
