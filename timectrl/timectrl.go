package timectrl

import (
	"context"
	"runtime"
	"time"
)

// Mode describes how the controller paces management cycles.
type Mode int

const (
	// RealTime waits a fixed wall-clock interval between cycles.
	RealTime Mode = iota
	// Accelerated runs cycles back to back, yielding cooperatively
	// between them. Used by the simulator and by tests.
	Accelerated
)

// Pacer separates cycle pacing from the control loop's business logic, so
// the same loop runs against a real-time ticker or an accelerated clock.
type Pacer interface {
	// Wait blocks until the next cycle should begin. It returns ctx.Err()
	// when the context is cancelled, which stops the loop between cycles.
	Wait(ctx context.Context) error
	// Stop releases any resources held by the pacer.
	Stop()
}

// New returns a pacer for the given mode. interval is ignored in
// Accelerated mode.
func New(mode Mode, interval time.Duration) Pacer {
	if mode == Accelerated {
		return immediatePacer{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &tickerPacer{ticker: time.NewTicker(interval)}
}

type tickerPacer struct {
	ticker *time.Ticker
}

func (p *tickerPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *tickerPacer) Stop() { p.ticker.Stop() }

type immediatePacer struct{}

func (immediatePacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	// Explicit yield point between cycles: other cooperative work gets a
	// chance to run even when cycles are back to back.
	runtime.Gosched()
	return nil
}

func (immediatePacer) Stop() {}
