package engine

import (
	"context"
	"strings"
	"testing"

	wasmhost "github.com/wippyai/wasm-host"
)

// dispatchFixture is a hand-assembled core module used by the adapter
// tests. It exports a 1-page memory and four functions:
//
//	on_timer(id)          stores id at [0] and bumps a call counter at [4]
//	on_gpio(id, state)    stores id at [8] and state at [12]
//	boom(id)              traps with unreachable
//	_initialize()         stores 0x1111 at [16]
var dispatchFixture = []byte{
	// \0asm, version 1
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
	// type section: (i32)->(), (i32,i32)->(), ()->()
	0x01, 0x0D, 0x03,
	0x60, 0x01, 0x7F, 0x00,
	0x60, 0x02, 0x7F, 0x7F, 0x00,
	0x60, 0x00, 0x00,
	// function section: on_timer:0 on_gpio:1 boom:0 _initialize:2
	0x03, 0x05, 0x04, 0x00, 0x01, 0x00, 0x02,
	// memory section: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export section
	0x07, 0x34, 0x05,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x08, 'o', 'n', '_', 't', 'i', 'm', 'e', 'r', 0x00, 0x00,
	0x07, 'o', 'n', '_', 'g', 'p', 'i', 'o', 0x00, 0x01,
	0x04, 'b', 'o', 'o', 'm', 0x00, 0x02,
	0x0B, '_', 'i', 'n', 'i', 't', 'i', 'a', 'l', 'i', 'z', 'e', 0x00, 0x03,
	// code section
	0x0A, 0x38, 0x04,
	// on_timer: [0]=arg0; [4]=[4]+1
	0x16, 0x00,
	0x41, 0x00, 0x20, 0x00, 0x36, 0x02, 0x00,
	0x41, 0x04, 0x41, 0x04, 0x28, 0x02, 0x00, 0x41, 0x01, 0x6A, 0x36, 0x02, 0x00,
	0x0B,
	// on_gpio: [8]=arg0; [12]=arg1
	0x10, 0x00,
	0x41, 0x08, 0x20, 0x00, 0x36, 0x02, 0x00,
	0x41, 0x0C, 0x20, 0x01, 0x36, 0x02, 0x00,
	0x0B,
	// boom: unreachable
	0x03, 0x00, 0x00, 0x0B,
	// _initialize: [16]=0x1111
	0x0A, 0x00, 0x41, 0x10, 0x41, 0x91, 0x22, 0x36, 0x02, 0x00, 0x0B,
}

func loadFixture(t *testing.T, ctx context.Context, module wasmhost.Handle) *WazeroEngine {
	t.Helper()

	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	t.Cleanup(func() { engine.Close(ctx) })

	if err := engine.LoadModule(ctx, module, dispatchFixture); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	return engine
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	if cfg.MemoryLimitPages != 0 {
		t.Errorf("expected default MemoryLimitPages 0, got %d", cfg.MemoryLimitPages)
	}
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWazeroEngineWithConfig failed: %v", err)
			}
			defer engine.Close(ctx)

			if engine.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestWazeroEngine_LoadModule(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	exports := engine.Exports("blinky")
	for _, want := range []string{"on_timer", "on_gpio", "boom", "_initialize"} {
		found := false
		for _, name := range exports {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("export %q missing from %v", want, exports)
		}
	}

	// _initialize must have run during load.
	mem, ok := engine.Memory("blinky")
	if !ok {
		t.Fatal("Memory should be available")
	}
	v, err := mem.ReadU32(16)
	if err != nil {
		t.Fatalf("ReadU32 failed: %v", err)
	}
	if v != 0x1111 {
		t.Errorf("expected _initialize marker 0x1111, got %#x", v)
	}
}

func TestWazeroEngine_LoadModule_Duplicate(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	err := engine.LoadModule(ctx, "blinky", dispatchFixture)
	if err == nil {
		t.Fatal("expected error for duplicate handle")
	}
	if !strings.Contains(err.Error(), "already loaded") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWazeroEngine_LoadModule_InvalidBinary(t *testing.T) {
	ctx := context.Background()

	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer engine.Close(ctx)

	if err := engine.LoadModule(ctx, "bad", []byte{0xDE, 0xAD}); err == nil {
		t.Fatal("expected compile error for garbage bytes")
	}
}

func TestWazeroEngine_LookupFunction(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	fn, ok := engine.LookupFunction("blinky", "on_timer")
	if !ok {
		t.Fatal("on_timer should resolve")
	}
	if fn.Name() != "on_timer" {
		t.Errorf("expected name on_timer, got %q", fn.Name())
	}

	if _, ok := engine.LookupFunction("blinky", "no_such_export"); ok {
		t.Error("unknown export should not resolve")
	}
	if _, ok := engine.LookupFunction("ghost", "on_timer"); ok {
		t.Error("unknown module should not resolve")
	}
}

func TestWazeroEngine_Invoke(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	ec, err := engine.CreateContext(ctx, "blinky")
	if err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}
	defer engine.DestroyContext(ctx, ec)

	if ec.Module() != "blinky" {
		t.Errorf("context module = %q, want blinky", ec.Module())
	}

	gpio, _ := engine.LookupFunction("blinky", "on_gpio")
	if err := engine.Invoke(ctx, ec, gpio, []uint32{7, 1}); err != nil {
		t.Fatalf("Invoke on_gpio failed: %v", err)
	}

	timer, _ := engine.LookupFunction("blinky", "on_timer")
	if err := engine.Invoke(ctx, ec, timer, []uint32{42}); err != nil {
		t.Fatalf("Invoke on_timer failed: %v", err)
	}
	if err := engine.Invoke(ctx, ec, timer, []uint32{43}); err != nil {
		t.Fatalf("Invoke on_timer failed: %v", err)
	}

	mem, _ := engine.Memory("blinky")
	checks := []struct {
		offset uint32
		want   uint32
	}{
		{0, 43}, // last on_timer id
		{4, 2},  // on_timer call counter
		{8, 7},  // on_gpio id
		{12, 1}, // on_gpio state
	}
	for _, c := range checks {
		v, err := mem.ReadU32(c.offset)
		if err != nil {
			t.Fatalf("ReadU32(%d) failed: %v", c.offset, err)
		}
		if v != c.want {
			t.Errorf("mem[%d] = %d, want %d", c.offset, v, c.want)
		}
	}
}

func TestWazeroEngine_TrapRecordsFault(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	ec, err := engine.CreateContext(ctx, "blinky")
	if err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}
	defer engine.DestroyContext(ctx, ec)

	boom, _ := engine.LookupFunction("blinky", "boom")
	if err := engine.Invoke(ctx, ec, boom, []uint32{1}); err == nil {
		t.Fatal("expected trap from boom")
	}

	fault := engine.LastFault("blinky")
	if !strings.Contains(fault, "unreachable") {
		t.Errorf("fault %q should mention unreachable", fault)
	}

	engine.ClearFault("blinky")
	if got := engine.LastFault("blinky"); got != "" {
		t.Errorf("fault should be cleared, got %q", got)
	}

	// A trapped module can still be invoked afterwards.
	timer, _ := engine.LookupFunction("blinky", "on_timer")
	if err := engine.Invoke(ctx, ec, timer, []uint32{9}); err != nil {
		t.Fatalf("Invoke after trap failed: %v", err)
	}
}

func TestWazeroEngine_DestroyContext(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	ec, err := engine.CreateContext(ctx, "blinky")
	if err != nil {
		t.Fatalf("CreateContext failed: %v", err)
	}

	if err := engine.DestroyContext(ctx, ec); err != nil {
		t.Fatalf("DestroyContext failed: %v", err)
	}
	if err := engine.DestroyContext(ctx, ec); err == nil {
		t.Fatal("second DestroyContext should fail")
	}

	timer, _ := engine.LookupFunction("blinky", "on_timer")
	if err := engine.Invoke(ctx, ec, timer, []uint32{1}); err == nil {
		t.Fatal("Invoke against destroyed context should fail")
	}
}

func TestWazeroEngine_UnloadModule(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	if err := engine.UnloadModule(ctx, "blinky"); err != nil {
		t.Fatalf("UnloadModule failed: %v", err)
	}
	if _, ok := engine.LookupFunction("blinky", "on_timer"); ok {
		t.Error("unloaded module should not resolve functions")
	}
	if err := engine.UnloadModule(ctx, "blinky"); err == nil {
		t.Fatal("second UnloadModule should fail")
	}
}

func TestWazeroEngine_MemoryBounds(t *testing.T) {
	ctx := context.Background()
	engine := loadFixture(t, ctx, "blinky")

	mem, ok := engine.Memory("blinky")
	if !ok {
		t.Fatal("Memory should be available")
	}

	// One page is 64KB.
	if _, err := mem.Read(65536, 4); err == nil {
		t.Error("read past end of memory should fail")
	}
	if err := mem.WriteU32(65534, 1); err == nil {
		t.Error("write straddling end of memory should fail")
	}
	if err := mem.Write(100, []byte{1, 2, 3}); err != nil {
		t.Errorf("in-range write failed: %v", err)
	}
	b, err := mem.Read(100, 3)
	if err != nil {
		t.Fatalf("in-range read failed: %v", err)
	}
	if b[0] != 1 || b[1] != 2 || b[2] != 3 {
		t.Errorf("read back %v, want [1 2 3]", b)
	}
}

func TestWazeroEngine_InitWASI(t *testing.T) {
	ctx := context.Background()

	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer engine.Close(ctx)

	if err := engine.InitWASI(ctx); err != nil {
		t.Fatalf("InitWASI failed: %v", err)
	}
	// Second call is a no-op, not a duplicate instantiation.
	if err := engine.InitWASI(ctx); err != nil {
		t.Fatalf("second InitWASI failed: %v", err)
	}
}

func TestWazeroEngine_WorkerBinding(t *testing.T) {
	ctx := context.Background()

	engine, err := NewWazeroEngine(ctx)
	if err != nil {
		t.Fatalf("NewWazeroEngine failed: %v", err)
	}
	defer engine.Close(ctx)

	if err := engine.BindWorker(); err != nil {
		t.Errorf("BindWorker failed: %v", err)
	}
	engine.UnbindWorker()
}
