package registry

import (
	"testing"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

func TestCleanupTable_RunsInTypeOrder(t *testing.T) {
	tbl := NewCleanupTable()

	var order []wasmhost.ResourceType
	for _, rt := range []wasmhost.ResourceType{
		wasmhost.ResourceSensor, wasmhost.ResourceTimer, wasmhost.ResourceGPIO,
	} {
		if err := tbl.Register(rt, func(module wasmhost.Handle) {
			if module != "m" {
				t.Errorf("handler got module %q, want m", module)
			}
			order = append(order, rt)
		}); err != nil {
			t.Fatalf("Register(%s) failed: %v", rt, err)
		}
	}

	tbl.Run("m")

	want := []wasmhost.ResourceType{
		wasmhost.ResourceTimer, wasmhost.ResourceGPIO, wasmhost.ResourceSensor,
	}
	if len(order) != len(want) {
		t.Fatalf("ran %d handlers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestCleanupTable_SkipsAbsentHandlers(t *testing.T) {
	tbl := NewCleanupTable()

	runs := 0
	if err := tbl.Register(wasmhost.ResourceSensor, func(wasmhost.Handle) { runs++ }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tbl.Run("m")
	if runs != 1 {
		t.Errorf("sensor handler ran %d times, want 1", runs)
	}
}

func TestCleanupTable_PanicDoesNotStopOthers(t *testing.T) {
	tbl := NewCleanupTable()

	var ran []wasmhost.ResourceType
	if err := tbl.Register(wasmhost.ResourceTimer, func(wasmhost.Handle) {
		ran = append(ran, wasmhost.ResourceTimer)
		panic("timer cleanup misbehaved")
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := tbl.Register(wasmhost.ResourceGPIO, func(wasmhost.Handle) {
		ran = append(ran, wasmhost.ResourceGPIO)
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := tbl.Register(wasmhost.ResourceSensor, func(wasmhost.Handle) {
		ran = append(ran, wasmhost.ResourceSensor)
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tbl.Run("m")

	if len(ran) != 3 {
		t.Fatalf("ran %d handlers, want all 3 despite the panic", len(ran))
	}
}

func TestCleanupTable_LastRegistrationWins(t *testing.T) {
	tbl := NewCleanupTable()

	got := ""
	if err := tbl.Register(wasmhost.ResourceGPIO, func(wasmhost.Handle) { got = "first" }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := tbl.Register(wasmhost.ResourceGPIO, func(wasmhost.Handle) { got = "second" }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tbl.Run("m")
	if got != "second" {
		t.Errorf("ran %q handler, want second", got)
	}
}

func TestCleanupTable_Validation(t *testing.T) {
	tbl := NewCleanupTable()

	err := tbl.Register(wasmhost.ResourceType(wasmhost.NumResourceTypes), func(wasmhost.Handle) {})
	if !errors.IsInvalidArgument(err) {
		t.Errorf("out-of-range type: got %v, want InvalidArgument", err)
	}
	if err := tbl.Register(wasmhost.ResourceTimer, nil); !errors.IsInvalidArgument(err) {
		t.Errorf("nil handler: got %v, want InvalidArgument", err)
	}
}

func TestCleanupTable_Reset(t *testing.T) {
	tbl := NewCleanupTable()

	runs := 0
	if err := tbl.Register(wasmhost.ResourceTimer, func(wasmhost.Handle) { runs++ }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	tbl.Reset()
	tbl.Run("m")
	if runs != 0 {
		t.Errorf("handler ran %d times after Reset, want 0", runs)
	}
}
