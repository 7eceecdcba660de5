package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerAcceleratedFiresExactTicks(t *testing.T) {
	tc := NewTimeController(time.Second, Accelerated)

	var seen []uint64
	tc.AddListener(func(tick uint64) { seen = append(seen, tick) })

	<-tc.Start(context.Background(), 25)

	if got := tc.Ticks(); got != 25 {
		t.Fatalf("Ticks() = %d, want 25", got)
	}
	if len(seen) != 25 || seen[0] != 1 || seen[24] != 25 {
		t.Fatalf("listener saw %v", seen)
	}
}

func TestTimeControllerRealTimeStopsOnCancel(t *testing.T) {
	tc := NewTimeController(2*time.Millisecond, RealTime)
	ctx, cancel := context.WithCancel(context.Background())

	fired := make(chan struct{}, 1)
	tc.AddListener(func(uint64) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	done := tc.Start(ctx, 0)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick fired in real-time mode")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not stop after cancel")
	}
}

func TestTimeControllerRealTimeHonoursMaxTicks(t *testing.T) {
	tc := NewTimeController(time.Millisecond, RealTime)
	<-tc.Start(context.Background(), 3)
	if got := tc.Ticks(); got != 3 {
		t.Fatalf("Ticks() = %d, want 3", got)
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":            RealTime,
		"realtime":    RealTime,
		"Accelerated": Accelerated,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if Accelerated.String() != "accelerated" || RealTime.String() != "realtime" {
		t.Fatalf("unexpected Mode strings")
	}
}
