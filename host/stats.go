package host

import (
	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/dispatch"
	"github.com/wippyai/wasm-host/errors"
)

// Stats is a point-in-time snapshot of host activity.
type Stats struct {
	// Running is false after shutdown; the remaining fields then hold
	// the cumulative totals only.
	Running bool
	// Modules is the number of live registrations.
	Modules int
	// QueueDepth and QueueCap describe current event queue occupancy.
	QueueDepth int
	QueueCap   int
	// Posted, Rejected and Dropped count events accepted, refused on a
	// full queue, and discarded at shutdown, over the host's lifetime.
	Posted   uint64
	Rejected uint64
	Dropped  uint64
	// Dispatch holds the worker-pool counters.
	Dispatch dispatch.Stats
	// Workers lists, per worker, the module currently being dispatched
	// into; empty handles mean idle workers.
	Workers []wasmhost.Handle
}

// Stats returns a snapshot of the host's counters and occupancy.
func (h *Host) Stats() Stats {
	s := Stats{
		Posted:   h.posted.Load(),
		Rejected: h.rejected.Load(),
		Dropped:  h.dropped.Load(),
	}

	st, err := h.snapshot(errors.PhaseLifecycle)
	if err != nil {
		return s
	}

	s.Running = true
	s.Modules = st.reg.Len()
	s.QueueDepth = st.q.Len()
	s.QueueCap = st.q.Cap()
	s.Dispatch = st.pool.Stats()
	s.Workers = st.pool.CurrentModules()
	return s
}
