// Package host assembles the registry, event queue, worker pool and
// cleanup table into one runnable unit and exposes the management and
// producer surfaces.
//
// A Host is constructed over an engine, started, fed modules and events,
// and shut down:
//
//	h := host.New(eng, nil)
//	if err := h.Start(); err != nil {
//		return err
//	}
//	defer h.Shutdown(ctx)
//
//	mod, err := h.RegisterModule(ctx, "blinky")
//	...
//	err = h.RegisterDispatcher("blinky", wasmhost.ResourceGPIO, "on_gpio")
//	...
//	err = h.PostGPIO("blinky", 3, 1)
//
// Start and Shutdown are idempotent. Start builds fresh state every time,
// so a host can be restarted after shutdown; none of the previous
// registrations or queued events survive.
//
// Posting validates the event's shape, not the owner's existence: drivers
// post from interrupt-like paths where the module may be mid-removal, and
// the dispatch worker is the single place that resolves owners. Shutdown
// stops the workers first, finishes in-flight dispatches, then removes
// every module with the same semantics as UnregisterModule and drops
// whatever is still queued.
package host
