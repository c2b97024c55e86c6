package events

import (
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/fleet-orchestrator/model"
)

// Kind labels what happened.
type Kind string

const (
	KindPlacement    Kind = "placement"
	KindHealing      Kind = "healing"
	KindCycleSummary Kind = "cycle_summary"
)

// Event is one entry on the feed. Exactly one of the optional payloads is
// set, matching Kind.
type Event struct {
	Kind Kind
	Time time.Time

	Service     string
	InstanceIDs []string

	Healing  *model.HealingAction
	Snapshot *model.FleetSnapshot
}

// Feed is an in-process event feed for reporting consumers. Publishing
// never blocks the control loop: when the buffer is full the event is
// dropped and counted, on the theory that a slow consumer must not stall
// healing or placement.
type Feed struct {
	ch      chan Event
	closed  atomic.Bool
	dropped atomic.Uint64
}

// New creates a feed with the given buffer size.
func New(buf int) *Feed {
	if buf <= 0 {
		buf = 64
	}
	return &Feed{ch: make(chan Event, buf)}
}

// Publish offers an event to the feed.
func (f *Feed) Publish(ev Event) {
	if f.closed.Load() {
		return
	}
	select {
	case f.ch <- ev:
	default:
		f.dropped.Add(1)
	}
}

// Events returns the receive side of the feed.
func (f *Feed) Events() <-chan Event { return f.ch }

// Dropped returns how many events were discarded due to a full buffer.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

// Close stops the feed. Publishing after Close is a no-op.
func (f *Feed) Close() {
	if f.closed.CompareAndSwap(false, true) {
		close(f.ch)
	}
}
