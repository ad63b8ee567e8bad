package main

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/dispatch"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/host"
)

// Manifest describes a hostd deployment: one optional runtime block and
// the modules to load.
type Manifest struct {
	Runtime *RuntimeBlock  `hcl:"runtime,block"`
	Modules []*ModuleBlock `hcl:"module,block"`
}

// RuntimeBlock tunes the host. Zero values keep the defaults.
type RuntimeBlock struct {
	Workers          int    `hcl:"workers,optional"`
	QueueCapacity    int    `hcl:"queue_capacity,optional"`
	BatchSize        int    `hcl:"batch_size,optional"`
	MaxAttempts      int    `hcl:"max_attempts,optional"`
	RetryDelayMs     int64  `hcl:"retry_delay_ms,optional"`
	MemoryLimitPages uint32 `hcl:"memory_limit_pages,optional"`
}

// ModuleBlock declares one wasm module, its dispatcher bindings, and the
// synthetic producers that drive it.
type ModuleBlock struct {
	Name        string             `hcl:"name,label"`
	Path        string             `hcl:"path"`
	Dispatchers []*DispatcherBlock `hcl:"dispatcher,block"`
	Timers      []*TimerBlock      `hcl:"timer,block"`
	GPIOs       []*GPIOBlock       `hcl:"gpio,block"`
	Sensors     []*SensorBlock     `hcl:"sensor,block"`
}

func (m *ModuleBlock) Handle() wasmhost.Handle { return wasmhost.Handle(m.Name) }

// DispatcherBlock binds an exported function as the module's handler for
// one resource type.
type DispatcherBlock struct {
	Type     string `hcl:"type"`
	Function string `hcl:"function"`
}

// TimerBlock posts a timer event every interval.
type TimerBlock struct {
	ID         uint32 `hcl:"id"`
	IntervalMs int64  `hcl:"interval_ms"`
}

// GPIOBlock alternates a pin level every interval.
type GPIOBlock struct {
	Pin      uint32 `hcl:"pin"`
	ToggleMs int64  `hcl:"toggle_ms"`
}

// SensorBlock posts an incrementing reading every interval.
type SensorBlock struct {
	ID      uint32 `hcl:"id"`
	Channel uint32 `hcl:"channel"`
	SweepMs int64  `hcl:"sweep_ms"`
}

// manifestContext lets dispatcher blocks name resource types bare, as in
// type = timer rather than type = "timer".
func manifestContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"timer":  cty.StringVal(wasmhost.ResourceTimer.String()),
			"gpio":   cty.StringVal(wasmhost.ResourceGPIO.String()),
			"sensor": cty.StringVal(wasmhost.ResourceSensor.String()),
		},
	}
}

// LoadManifest parses and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse manifest %s: %w", path, diags)
	}

	var m Manifest
	if diags := gohcl.DecodeBody(file.Body, manifestContext(), &m); diags.HasErrors() {
		return nil, fmt.Errorf("decode manifest %s: %w", path, diags)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Modules) == 0 {
		return fmt.Errorf("no modules declared")
	}
	seen := make(map[string]bool, len(m.Modules))
	for _, mod := range m.Modules {
		if mod.Name == "" {
			return fmt.Errorf("module with empty name")
		}
		if seen[mod.Name] {
			return fmt.Errorf("module %q declared twice", mod.Name)
		}
		seen[mod.Name] = true
		if mod.Path == "" {
			return fmt.Errorf("module %q: empty path", mod.Name)
		}
		for _, d := range mod.Dispatchers {
			if _, err := parseResourceType(d.Type); err != nil {
				return fmt.Errorf("module %q: %w", mod.Name, err)
			}
			if d.Function == "" {
				return fmt.Errorf("module %q: dispatcher without a function", mod.Name)
			}
		}
	}
	return nil
}

func parseResourceType(s string) (wasmhost.ResourceType, error) {
	switch s {
	case "timer":
		return wasmhost.ResourceTimer, nil
	case "gpio":
		return wasmhost.ResourceGPIO, nil
	case "sensor":
		return wasmhost.ResourceSensor, nil
	}
	return 0, fmt.Errorf("unknown resource type %q", s)
}

// HostConfig converts the runtime block into a host configuration.
func (m *Manifest) HostConfig() *host.Config {
	cfg := &host.Config{}
	if rt := m.Runtime; rt != nil {
		cfg.QueueCapacity = rt.QueueCapacity
		cfg.Dispatch = dispatch.Config{
			Workers:    rt.Workers,
			BatchSize:  rt.BatchSize,
			Attempts:   rt.MaxAttempts,
			RetryDelay: time.Duration(rt.RetryDelayMs) * time.Millisecond,
		}
	}
	return cfg
}

// EngineConfig converts the runtime block into an engine configuration.
func (m *Manifest) EngineConfig() *engine.Config {
	cfg := &engine.Config{}
	if rt := m.Runtime; rt != nil {
		cfg.MemoryLimitPages = rt.MemoryLimitPages
	}
	return cfg
}
