package main

import (
	"sync"
	"time"

	"github.com/wippyai/wasm-host/host"
)

// producers runs the synthetic event sources the manifest declares:
// periodic timers, toggling pins, sweeping sensor readings. Each source
// gets its own goroutine until Stop.
type producers struct {
	h *host.Host
	m *Manifest

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newProducers(h *host.Host, m *Manifest) *producers {
	return &producers{h: h, m: m, stopCh: make(chan struct{})}
}

// Start launches every declared source. Sources with a non-positive
// interval are skipped.
func (p *producers) Start() {
	for _, mod := range p.m.Modules {
		owner := mod.Handle()
		for _, t := range mod.Timers {
			p.launch(t.IntervalMs, func(uint64) error {
				return p.h.PostTimer(owner, t.ID)
			})
		}
		for _, g := range mod.GPIOs {
			p.launch(g.ToggleMs, func(tick uint64) error {
				return p.h.PostGPIO(owner, g.Pin, uint32(tick%2))
			})
		}
		for _, s := range mod.Sensors {
			p.launch(s.SweepMs, func(tick uint64) error {
				return p.h.PostSensor(owner, s.ID, s.Channel, uint32(tick))
			})
		}
	}
}

func (p *producers) launch(intervalMs int64, post func(tick uint64) error) {
	if intervalMs <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
		defer ticker.Stop()

		var tick uint64
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				tick++
				// A full queue surfaces in the host's rejected counter.
				_ = post(tick)
			}
		}
	}()
}

// Stop halts every source and waits for the goroutines to exit. Safe to
// call more than once.
func (p *producers) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
