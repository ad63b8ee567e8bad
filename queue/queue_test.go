package queue

import (
	"sync"
	"testing"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

func TestQueue_DefaultCapacity(t *testing.T) {
	q := New(0)
	if q.Cap() != DefaultCapacity {
		t.Errorf("Cap = %d, want %d", q.Cap(), DefaultCapacity)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestQueue_PostRejectsWhenFull(t *testing.T) {
	q := New(4)

	for i := 0; i < 4; i++ {
		if err := q.Post(wasmhost.TimerEvent("m", uint32(i))); err != nil {
			t.Fatalf("Post %d failed: %v", i, err)
		}
	}

	err := q.Post(wasmhost.TimerEvent("m", 99))
	if !errors.IsExhausted(err) {
		t.Fatalf("post past capacity: got %v, want ResourceExhausted", err)
	}
	if q.Len() != 4 {
		t.Errorf("Len = %d, want 4 after rejected post", q.Len())
	}

	// Contents must be untouched by the rejected post.
	buf := make([]wasmhost.Event, 8)
	n := q.DrainBatch(buf)
	if n != 4 {
		t.Fatalf("drained %d, want 4", n)
	}
	for i := 0; i < 4; i++ {
		if buf[i].ID != uint32(i) {
			t.Errorf("event %d has ID %d, want %d", i, buf[i].ID, i)
		}
	}
}

func TestQueue_FIFOSingleProducer(t *testing.T) {
	q := New(16)

	for i := 0; i < 10; i++ {
		if err := q.Post(wasmhost.SensorEvent("m", uint32(i), 1, 2)); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}

	// Drain in two batches; order must hold across batch boundaries.
	var got []uint32
	buf := make([]wasmhost.Event, 6)
	for {
		n := q.DrainBatch(buf)
		if n == 0 {
			break
		}
		for _, e := range buf[:n] {
			got = append(got, e.ID)
		}
	}

	if len(got) != 10 {
		t.Fatalf("drained %d events, want 10", len(got))
	}
	for i, id := range got {
		if id != uint32(i) {
			t.Errorf("position %d has ID %d, want %d", i, id, i)
		}
	}
}

func TestQueue_FIFOPerProducer(t *testing.T) {
	q := New(256)

	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				// ID encodes producer and sequence so relative order
				// can be checked after interleaving.
				if err := q.Post(wasmhost.TimerEvent("m", uint32(p*1000+i))); err != nil {
					t.Errorf("Post failed: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	buf := make([]wasmhost.Event, 256)
	n := q.DrainBatch(buf)
	if n != producers*perProducer {
		t.Fatalf("drained %d, want %d", n, producers*perProducer)
	}

	next := make([]uint32, producers)
	for _, e := range buf[:n] {
		p := e.ID / 1000
		seq := e.ID % 1000
		if seq != next[p] {
			t.Fatalf("producer %d out of order: got seq %d, want %d", p, seq, next[p])
		}
		next[p]++
	}
}

func TestQueue_RingWraparound(t *testing.T) {
	q := New(4)
	buf := make([]wasmhost.Event, 3)

	id := uint32(0)
	want := uint32(0)
	// Cycle enough posts and drains to wrap the ring several times.
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			if err := q.Post(wasmhost.TimerEvent("m", id)); err != nil {
				t.Fatalf("Post failed: %v", err)
			}
			id++
		}
		n := q.DrainBatch(buf)
		if n != 3 {
			t.Fatalf("drained %d, want 3", n)
		}
		for i := 0; i < n; i++ {
			if buf[i].ID != want {
				t.Fatalf("round %d: got ID %d, want %d", round, buf[i].ID, want)
			}
			want++
		}
	}
}

func TestQueue_WakeIsLossyHint(t *testing.T) {
	q := New(4)

	for i := 0; i < 3; i++ {
		if err := q.Post(wasmhost.TimerEvent("m", uint32(i))); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}

	// One drain can satisfy all pending signals.
	buf := make([]wasmhost.Event, 4)
	if n := q.DrainBatch(buf); n != 3 {
		t.Fatalf("drained %d, want 3", n)
	}

	// Signals are still pending; a worker waking on them must tolerate
	// finding nothing.
	woke := 0
	for {
		select {
		case <-q.Wake():
			woke++
			if n := q.DrainBatch(buf); n != 0 {
				t.Fatalf("drained %d from empty queue", n)
			}
		default:
			if woke == 0 {
				t.Fatal("expected at least one pending wake signal")
			}
			return
		}
	}
}

func TestQueue_TakeOwned(t *testing.T) {
	q := New(16)

	post := []wasmhost.Event{
		wasmhost.TimerEvent("a", 1),
		wasmhost.TimerEvent("b", 2),
		wasmhost.TimerEvent("a", 3),
		wasmhost.TimerEvent("b", 4),
		wasmhost.TimerEvent("b", 5),
	}
	for _, e := range post {
		if err := q.Post(e); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}

	e, ok := q.TakeOwned("b")
	if !ok || e.ID != 2 {
		t.Fatalf("TakeOwned(b) = %v/%v, want ID 2", e, ok)
	}
	e, ok = q.TakeOwned("b")
	if !ok || e.ID != 4 {
		t.Fatalf("second TakeOwned(b) = %v/%v, want ID 4", e, ok)
	}

	if _, ok := q.TakeOwned("ghost"); ok {
		t.Error("TakeOwned for unknown owner should miss")
	}

	// Remaining events keep their relative order: 1, 3, 5.
	buf := make([]wasmhost.Event, 8)
	n := q.DrainBatch(buf)
	if n != 3 {
		t.Fatalf("drained %d, want 3", n)
	}
	for i, want := range []uint32{1, 3, 5} {
		if buf[i].ID != want {
			t.Errorf("position %d has ID %d, want %d", i, buf[i].ID, want)
		}
	}
}

func TestQueue_Reset(t *testing.T) {
	q := New(8)
	for i := 0; i < 5; i++ {
		if err := q.Post(wasmhost.GPIOEvent("m", uint32(i), 1)); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}

	if dropped := q.Reset(); dropped != 5 {
		t.Errorf("Reset dropped %d, want 5", dropped)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d after Reset, want 0", q.Len())
	}
	buf := make([]wasmhost.Event, 8)
	if n := q.DrainBatch(buf); n != 0 {
		t.Errorf("drained %d after Reset, want 0", n)
	}

	// The queue is reusable after Reset.
	if err := q.Post(wasmhost.TimerEvent("m", 7)); err != nil {
		t.Fatalf("Post after Reset failed: %v", err)
	}
	if n := q.DrainBatch(buf); n != 1 || buf[0].ID != 7 {
		t.Errorf("drain after Reset = %d/%v, want the reposted event", n, buf[0])
	}
}
