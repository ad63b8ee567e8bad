package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/dispatch"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/hostapi"
	"github.com/wippyai/wasm-host/registry"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "", "Path to host manifest (.hcl)")
		list         = flag.Bool("list", false, "List module exports and exit")
		interactive  = flag.Bool("i", false, "Interactive monitor (TUI)")
		debug        = flag.Bool("debug", false, "Debug logging")
	)
	flag.Parse()

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: hostd -manifest <host.hcl> [-debug]")
		fmt.Fprintln(os.Stderr, "       hostd -manifest <host.hcl> -list")
		fmt.Fprintln(os.Stderr, "       hostd -manifest <host.hcl> -i  (interactive monitor)")
		os.Exit(1)
	}

	if err := run(*manifestPath, *list, *interactive, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. The interactive monitor owns the
// terminal, so it runs with logging off.
func newLogger(debug, interactive bool) (*zap.Logger, error) {
	if interactive {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func run(manifestPath string, listOnly, interactive, debug bool) error {
	ctx := context.Background()

	m, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(debug, interactive)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	engine.SetLogger(logger.Named("engine"))
	registry.SetLogger(logger.Named("registry"))
	dispatch.SetLogger(logger.Named("dispatch"))
	host.SetLogger(logger.Named("host"))

	eng, err := engine.NewWazeroEngineWithConfig(ctx, m.EngineConfig())
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close(ctx)

	h := host.New(eng, m.HostConfig())
	if _, err := hostapi.Register(ctx, eng.Runtime(), h); err != nil {
		return fmt.Errorf("register host API: %w", err)
	}
	if err := eng.InitWASI(ctx); err != nil {
		return fmt.Errorf("init WASI: %w", err)
	}

	for _, mod := range m.Modules {
		data, err := os.ReadFile(mod.Path)
		if err != nil {
			return fmt.Errorf("read module %s: %w", mod.Name, err)
		}
		if err := eng.LoadModule(ctx, mod.Handle(), data); err != nil {
			return fmt.Errorf("load module %s: %w", mod.Name, err)
		}
	}

	if listOnly {
		for _, mod := range m.Modules {
			fmt.Printf("%s (%s):\n", mod.Name, mod.Path)
			for _, name := range eng.Exports(mod.Handle()) {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil
	}

	if err := h.Start(); err != nil {
		return fmt.Errorf("start host: %w", err)
	}

	for rt := wasmhost.ResourceTimer; rt.Valid(); rt++ {
		if err := h.RegisterCleanup(rt, func(mod wasmhost.Handle) {
			logger.Info("released module resources",
				zap.String("module", string(mod)),
				zap.Stringer("type", rt))
		}); err != nil {
			return fmt.Errorf("register cleanup: %w", err)
		}
	}

	for _, mod := range m.Modules {
		if _, err := h.RegisterModule(ctx, mod.Handle()); err != nil {
			return fmt.Errorf("register module %s: %w", mod.Name, err)
		}
		for _, d := range mod.Dispatchers {
			rt, err := parseResourceType(d.Type)
			if err != nil {
				return fmt.Errorf("module %s: %w", mod.Name, err)
			}
			if err := h.RegisterDispatcher(mod.Handle(), rt, d.Function); err != nil {
				return fmt.Errorf("module %s: bind %s dispatcher: %w", mod.Name, d.Type, err)
			}
		}
	}

	prod := newProducers(h, m)
	prod.Start()
	defer prod.Stop()

	if interactive {
		if err := runMonitor(h); err != nil {
			return err
		}
	} else {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		fmt.Printf("hostd: %d module(s) running, ctrl-c to stop\n", len(m.Modules))
		<-stop
	}

	prod.Stop()
	stats := h.Stats()
	h.Shutdown(ctx)
	printStats(stats, h.Stats())
	return nil
}

// printStats prints the run summary: pre holds the last live snapshot,
// post the counters after shutdown (which include dropped events).
func printStats(pre, post host.Stats) {
	fmt.Printf("\n--- final stats ---\n")
	fmt.Printf("events posted:   %d\n", post.Posted)
	fmt.Printf("events rejected: %d\n", post.Rejected)
	fmt.Printf("events dropped:  %d\n", post.Dropped)
	fmt.Printf("dispatched:      %d\n", pre.Dispatch.Dispatched)
	fmt.Printf("failed:          %d\n", pre.Dispatch.Failed)
	fmt.Printf("discarded:       %d\n", pre.Dispatch.Discarded)
	fmt.Printf("retries:         %d\n", pre.Dispatch.Retries)
}
