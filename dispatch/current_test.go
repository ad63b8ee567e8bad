package dispatch

import (
	"context"
	"testing"
)

func TestCurrent(t *testing.T) {
	ctx := context.Background()

	if _, ok := Current(ctx); ok {
		t.Error("bare context should carry no current module")
	}

	ctx = WithCurrent(ctx, "blinky")
	got, ok := Current(ctx)
	if !ok || got != "blinky" {
		t.Errorf("Current = %q/%v, want blinky/true", got, ok)
	}

	// An empty marker reads as absent.
	if _, ok := Current(WithCurrent(context.Background(), "")); ok {
		t.Error("empty handle should not count as a current module")
	}
}
