package bar

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

// DropOptions controls a drop.
type DropOptions struct {
	// MoveBar relocates the bar to the bottom of the channel.
	MoveBar bool
	// MoveCheck relocates the caught-up marker.
	MoveCheck bool
	// Manual marks a user-initiated drop; only these clear the notification.
	Manual bool
}

func (o DropOptions) merge(other DropOptions) DropOptions {
	return DropOptions{
		MoveBar:   o.MoveBar || other.MoveBar,
		MoveCheck: o.MoveCheck || other.MoveCheck,
		Manual:    o.Manual || other.Manual,
	}
}

type pendingDrop struct {
	timer clockwork.Timer
	gen   uint64
	opts  DropOptions
	ctx   context.Context
}

// Debouncer holds at most one pending drop per channel. Rescheduling stops the
// previous timer and moves the deadline; a timer that fires after being
// superseded finds a newer generation and does nothing.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	run   func(ctx context.Context, channelID string, opts DropOptions)

	mu      sync.Mutex
	gen     uint64
	pending map[string]*pendingDrop
}

// NewDebouncer returns a debouncer that calls run delay after the last
// Schedule for a channel.
func NewDebouncer(clock clockwork.Clock, delay time.Duration, run func(ctx context.Context, channelID string, opts DropOptions)) *Debouncer {
	return &Debouncer{
		clock:   clock,
		delay:   delay,
		run:     run,
		pending: make(map[string]*pendingDrop),
	}
}

// Schedule arms or re-arms the channel's timer. Options of coalesced requests
// are OR-ed so a manual request is never downgraded. It reports whether an
// earlier request was absorbed.
func (d *Debouncer) Schedule(ctx context.Context, channelID string, opts DropOptions) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	coalesced := false
	if p, ok := d.pending[channelID]; ok {
		p.timer.Stop()
		opts = p.opts.merge(opts)
		coalesced = true
		telemetry.CountCoalescedDrop()
	}
	d.gen++
	gen := d.gen
	d.pending[channelID] = &pendingDrop{
		timer: d.clock.AfterFunc(d.delay, func() { d.fire(channelID, gen) }),
		gen:   gen,
		opts:  opts,
		ctx:   context.WithoutCancel(ctx),
	}
	return coalesced
}

func (d *Debouncer) fire(channelID string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[channelID]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, channelID)
	d.mu.Unlock()
	d.run(p.ctx, channelID, p.opts)
}

// Cancel drops the pending request for a channel. Cancelling after the drop
// already ran is a no-op.
func (d *Debouncer) Cancel(channelID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[channelID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, channelID)
	return true
}

// Pending reports whether a drop is scheduled for channelID.
func (d *Debouncer) Pending(channelID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[channelID]
	return ok
}

// Stop cancels every pending request.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
}
