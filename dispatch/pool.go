package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/queue"
	"github.com/wippyai/wasm-host/registry"
)

// Defaults sized for a small embedded host: two workers draining in
// batches of sixteen, three delivery attempts per event with a short
// fixed pause between retries.
const (
	DefaultWorkers    = 2
	DefaultBatchSize  = 16
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Millisecond
)

// Config holds worker-pool configuration. The zero value of any field
// means its default.
type Config struct {
	// Workers is the number of dispatch goroutines.
	Workers int
	// BatchSize caps how many events one worker drains per pass.
	BatchSize int
	// Attempts bounds delivery tries per event, including the first.
	Attempts int
	// RetryDelay is the pause between attempts after a fault.
	RetryDelay time.Duration
}

func (c *Config) withDefaults() Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultBatchSize
	}
	if out.Attempts <= 0 {
		out.Attempts = DefaultAttempts
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = DefaultRetryDelay
	}
	return out
}

// Stats is a snapshot of pool counters.
type Stats struct {
	// Dispatched counts events delivered successfully.
	Dispatched uint64
	// Failed counts events abandoned after the retry bound.
	Failed uint64
	// Discarded counts events dropped before invocation: owner gone or
	// no dispatcher for the type.
	Discarded uint64
	// Retries counts extra attempts after faults.
	Retries uint64
}

// Pool drains the event queue with a fixed set of workers and invokes the
// owning module's dispatcher for each event.
type Pool struct {
	eng engine.Engine
	reg *registry.Registry
	q   *queue.Queue
	cfg Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  atomic.Bool

	// current[i] holds the handle worker i is dispatching into, or the
	// empty handle while idle. Per worker, never a shared cell.
	current []atomic.Value

	dispatched atomic.Uint64
	failed     atomic.Uint64
	discarded  atomic.Uint64
	retries    atomic.Uint64
}

// New creates a pool over the given engine, registry and queue. A nil
// config uses the defaults.
func New(eng engine.Engine, reg *registry.Registry, q *queue.Queue, cfg *Config) *Pool {
	c := cfg.withDefaults()
	p := &Pool{
		eng:     eng,
		reg:     reg,
		q:       q,
		cfg:     c,
		stopCh:  make(chan struct{}),
		current: make([]atomic.Value, c.Workers),
	}
	for i := range p.current {
		p.current[i].Store(wasmhost.Handle(""))
	}
	return p
}

// Start launches the workers. Each worker pins its OS thread and binds it
// to the engine before touching the queue; if any bind fails, the workers
// that did start are stopped and unbound, and the error is returned.
func (p *Pool) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.InvalidArgument(errors.PhaseLifecycle, "worker pool already started")
	}

	bindCh := make(chan error, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i, bindCh)
	}

	var bindErr error
	for i := 0; i < p.cfg.Workers; i++ {
		if err := <-bindCh; err != nil && bindErr == nil {
			bindErr = err
		}
	}
	if bindErr != nil {
		p.Stop()
		return errors.Wrap(errors.PhaseLifecycle, errors.KindNotInitialized, bindErr,
			"worker thread binding failed")
	}

	Logger().Info("dispatch pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("batch", p.cfg.BatchSize))
	return nil
}

// Stop signals every worker, wakes them, and waits for them to exit.
// In-flight dispatches finish their retry bound first; events still
// queued stay queued for the caller to drop. Safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Dispatched: p.dispatched.Load(),
		Failed:     p.failed.Load(),
		Discarded:  p.discarded.Load(),
		Retries:    p.retries.Load(),
	}
}

// CurrentModules reports, per worker, the module each worker is currently
// dispatching into; the empty handle means idle.
func (p *Pool) CurrentModules() []wasmhost.Handle {
	out := make([]wasmhost.Handle, len(p.current))
	for i := range p.current {
		if h, ok := p.current[i].Load().(wasmhost.Handle); ok {
			out[i] = h
		}
	}
	return out
}

// worker is one dispatch goroutine. It reports its engine binding result
// on bindCh exactly once before entering the drain loop.
func (p *Pool) worker(idx int, bindCh chan<- error) {
	defer p.wg.Done()

	// Engines backed by native runtimes bind per OS thread, so the
	// goroutine must not migrate while bound.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := p.eng.BindWorker(); err != nil {
		bindCh <- err
		return
	}
	bindCh <- nil
	defer p.eng.UnbindWorker()

	batch := make([]wasmhost.Event, p.cfg.BatchSize)
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.q.Wake():
		}
		if !p.drainAll(idx, batch) {
			return
		}
	}
}

// drainAll empties the queue in batches. It checks the stop signal
// between batches, never mid-batch, so a drained batch is always fully
// dispatched. Returns false when the worker should exit.
func (p *Pool) drainAll(idx int, batch []wasmhost.Event) bool {
	for {
		select {
		case <-p.stopCh:
			return false
		default:
		}
		n := p.q.DrainBatch(batch)
		if n == 0 {
			return true
		}
		for _, e := range batch[:n] {
			p.dispatchEvent(idx, e)
		}
	}
}

// dispatchEvent delivers one event to its owner's dispatcher.
func (p *Pool) dispatchEvent(idx int, e wasmhost.Event) {
	mod, ok := p.reg.Find(e.Owner)
	if !ok {
		// Owner vanished between enqueue and dispatch. Expected race,
		// not an error.
		p.discarded.Add(1)
		Logger().Debug("event discarded: owner not registered",
			zap.String("module", string(e.Owner)),
			zap.Stringer("type", e.Type))
		return
	}

	fn, ok := mod.Dispatcher(e.Type)
	if !ok {
		p.discarded.Add(1)
		Logger().Debug("event discarded: no dispatcher for type",
			zap.String("module", string(e.Owner)),
			zap.Stringer("type", e.Type))
		return
	}

	args := e.Args()

	p.current[idx].Store(e.Owner)
	defer p.current[idx].Store(wasmhost.Handle(""))

	// One goroutine inside a module's execution context at a time.
	// Teardown takes the same lock, so acquiring it can mean the module
	// was removed while we waited.
	mod.LockCall()
	defer mod.UnlockCall()
	if !mod.InUse() {
		p.discarded.Add(1)
		Logger().Debug("event discarded: module removed mid-flight",
			zap.String("module", string(e.Owner)),
			zap.Stringer("type", e.Type))
		return
	}

	ctx := WithCurrent(context.Background(), e.Owner)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		err := p.eng.Invoke(ctx, mod.Exec(), fn, args)
		if err == nil {
			if attempt > 1 {
				Logger().Info("dispatch recovered after retry",
					zap.String("module", string(e.Owner)),
					zap.String("function", fn.Name()),
					zap.Int("attempt", attempt))
			}
			mod.Touch()
			p.dispatched.Add(1)
			return
		}

		lastErr = err
		Logger().Warn("dispatcher faulted",
			zap.String("module", string(e.Owner)),
			zap.String("function", fn.Name()),
			zap.Int("attempt", attempt),
			zap.Int("attempts", p.cfg.Attempts),
			zap.String("fault", p.eng.LastFault(e.Owner)))

		// Each attempt gets a clean fault slate.
		p.eng.ClearFault(e.Owner)

		if attempt < p.cfg.Attempts {
			p.retries.Add(1)
			time.Sleep(p.cfg.RetryDelay)
		}
	}

	p.failed.Add(1)
	Logger().Error("dispatch failed, retries exhausted",
		zap.Error(errors.EngineFault(e.Owner, fn.Name(), lastErr)),
		zap.Stringer("type", e.Type),
		zap.Uint32("id", e.ID))
}
