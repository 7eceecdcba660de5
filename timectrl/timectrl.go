// Package timectrl owns the tick cadence of a simulation. The simulation
// itself never reads a clock; a TimeController decides when each tick fires.
package timectrl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode describes how the TimeController paces ticks.
type Mode int

const (
	// RealTime fires one tick per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated fires ticks back to back, as fast as listeners return.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string onto a Mode. The empty string means
// RealTime.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "realtime", "real-time":
		return RealTime, nil
	case "accelerated":
		return Accelerated, nil
	default:
		return RealTime, fmt.Errorf("unknown time mode %q", s)
	}
}

// TimeController fires numbered ticks and notifies registered listeners.
type TimeController struct {
	mu       sync.RWMutex
	Interval time.Duration
	Mode     Mode

	ticks uint64

	listeners []func(tick uint64)
}

// NewTimeController constructs a controller. A non-positive interval in
// RealTime mode falls back to one tick per 16ms (roughly one display frame).
func NewTimeController(interval time.Duration, mode Mode) *TimeController {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &TimeController{
		Interval: interval,
		Mode:     mode,
	}
}

// Ticks returns the number of ticks fired so far.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers a callback invoked on every tick. Listeners run on
// the controller goroutine, in registration order.
func (tc *TimeController) AddListener(fn func(tick uint64)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start fires ticks in a separate goroutine until maxTicks have fired
// (0 means unbounded) or ctx is cancelled. The returned channel is closed
// when the controller stops.
func (tc *TimeController) Start(ctx context.Context, maxTicks uint64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Interval)
			defer ticker.Stop()
		}

		for fired := uint64(0); maxTicks == 0 || fired < maxTicks; fired++ {
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.fire()
		}
	}()
	return done
}

func (tc *TimeController) fire() {
	tc.mu.Lock()
	tc.ticks++
	tick := tc.ticks
	listeners := tc.listeners
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(tick)
	}
}
