package main

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/wasm-host/engine/enginetest"
	"github.com/wippyai/wasm-host/host"
)

func TestProducers_PostOnInterval(t *testing.T) {
	eng := enginetest.New()
	h := host.New(eng, nil)
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { h.Shutdown(context.Background()) })

	eng.Load("blinky")
	if _, err := h.RegisterModule(context.Background(), "blinky"); err != nil {
		t.Fatalf("RegisterModule failed: %v", err)
	}

	m := &Manifest{Modules: []*ModuleBlock{{
		Name:    "blinky",
		Path:    "blinky.wasm",
		Timers:  []*TimerBlock{{ID: 1, IntervalMs: 2}},
		GPIOs:   []*GPIOBlock{{Pin: 13, ToggleMs: 2}},
		Sensors: []*SensorBlock{{ID: 2, Channel: 0, SweepMs: 2}},
	}}}

	p := newProducers(h, m)
	p.Start()
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Posted < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for producer events, posted=%d", h.Stats().Posted)
		}
		time.Sleep(time.Millisecond)
	}

	p.Stop()
	settled := h.Stats().Posted
	time.Sleep(10 * time.Millisecond)
	if got := h.Stats().Posted; got != settled {
		t.Errorf("events posted after Stop: %d -> %d", settled, got)
	}
}

func TestProducers_SkipNonPositiveIntervals(t *testing.T) {
	eng := enginetest.New()
	h := host.New(eng, nil)
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { h.Shutdown(context.Background()) })

	m := &Manifest{Modules: []*ModuleBlock{{
		Name:   "idle",
		Path:   "idle.wasm",
		Timers: []*TimerBlock{{ID: 1, IntervalMs: 0}},
		GPIOs:  []*GPIOBlock{{Pin: 1, ToggleMs: -5}},
	}}}

	p := newProducers(h, m)
	p.Start()
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	if got := h.Stats().Posted; got != 0 {
		t.Errorf("posted = %d, want 0", got)
	}
}
