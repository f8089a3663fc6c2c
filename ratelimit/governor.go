// Package ratelimit throttles outbound mutations to the chat platform.
//
// The Governor keeps a sliding window of call timestamps per (action, scope)
// pair and delays callers until a slot is free. Every action except the
// global one is additionally gated by the shared ("global", "all") bucket.
// The Governor only delays; it never rejects a call.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

// Action names understood by the governor. Unknown actions pass through.
const (
	ActionSendMessage   = "send_message"
	ActionDeleteMessage = "delete_message"
	ActionAddReaction   = "add_reaction"
	ActionEditMessage   = "edit_message"
	ActionDirectMessage = "direct_message"
	ActionPresence      = "update_presence"
	ActionIdentify      = "identify"
	ActionChannelRename = "channel_rename"
	ActionCreateRole    = "create_role"
	ActionGlobal        = "global"

	// GlobalScope is the only scope used with ActionGlobal.
	GlobalScope = "all"
)

// DefaultBuffer is added to every computed wait.
const DefaultBuffer = 50 * time.Millisecond

// Limit is the number of calls allowed within Window.
type Limit struct {
	Calls  int
	Window time.Duration
}

// effective applies the "leave one slot open" policy.
func (l Limit) effective() int {
	n := l.Calls
	if n > 1 {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultLimits returns the static limit table for Discord. The global entry
// stays below the platform's 50/s ceiling.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		ActionSendMessage:   {Calls: 5, Window: 5 * time.Second},
		ActionDeleteMessage: {Calls: 5, Window: time.Second},
		ActionAddReaction:   {Calls: 1, Window: 250 * time.Millisecond},
		ActionEditMessage:   {Calls: 5, Window: 5 * time.Second},
		ActionDirectMessage: {Calls: 5, Window: 5 * time.Second},
		ActionPresence:      {Calls: 5, Window: time.Minute},
		ActionIdentify:      {Calls: 1, Window: 5 * time.Second},
		ActionChannelRename: {Calls: 2, Window: 10 * time.Minute},
		ActionCreateRole:    {Calls: 250, Window: 48 * time.Hour},
		ActionGlobal:        {Calls: 45, Window: time.Second},
	}
}

// bucket holds the timestamps of one (action, scope) pair. guard serializes
// logical waiters and is a one-slot channel so acquiring it honours ctx;
// mu protects stamps for short reads.
type bucket struct {
	guard  chan struct{}
	mu     sync.Mutex
	stamps []time.Time
}

// evict drops timestamps that have left the window.
func (b *bucket) evict(now time.Time, window time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.stamps[:0]
	for _, t := range b.stamps {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	b.stamps = kept
	return len(b.stamps)
}

func (b *bucket) oldest() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stamps[0]
}

func (b *bucket) push(t time.Time) {
	b.mu.Lock()
	b.stamps = append(b.stamps, t)
	b.mu.Unlock()
}

// Governor gates outbound calls by action and scope key.
type Governor struct {
	clock  clockwork.Clock
	limits map[string]Limit
	buffer time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock injects the time source.
func WithClock(c clockwork.Clock) Option { return func(g *Governor) { g.clock = c } }

// WithBuffer overrides the safety margin added to each wait.
func WithBuffer(d time.Duration) Option { return func(g *Governor) { g.buffer = d } }

// WithLimits replaces the limit table.
func WithLimits(limits map[string]Limit) Option {
	return func(g *Governor) { g.limits = limits }
}

// New returns a Governor using DefaultLimits and the real clock unless overridden.
func New(opts ...Option) *Governor {
	g := &Governor{
		clock:   clockwork.NewRealClock(),
		limits:  DefaultLimits(),
		buffer:  DefaultBuffer,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Governor) bucket(action, scope string) *bucket {
	key := action + ":" + scope
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{guard: make(chan struct{}, 1)}
		g.buckets[key] = b
	}
	return b
}

// Await blocks until a slot for (action, scope) is free and reserves it.
// The only error returned is ctx.Err() when the context ends while waiting.
func (g *Governor) Await(ctx context.Context, action, scope string) error {
	if _, ok := g.limits[action]; !ok {
		return nil
	}
	if action != ActionGlobal {
		if err := g.wait(ctx, ActionGlobal, GlobalScope); err != nil {
			return err
		}
	}
	return g.wait(ctx, action, scope)
}

func (g *Governor) wait(ctx context.Context, action, scope string) error {
	limit := g.limits[action]
	b := g.bucket(action, scope)

	select {
	case b.guard <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.guard }()

	start := g.clock.Now()
	now := start
	waited := false
	for b.evict(now, limit.Window) >= limit.effective() {
		wait := b.oldest().Add(limit.Window).Sub(now) + g.buffer
		if wait > 0 {
			waited = true
			slog.Debug("rate limit reached, waiting",
				slog.String("action", action),
				slog.String("scope", scope),
				slog.Duration("wait", wait),
				slog.String("component", "ratelimit"))
			select {
			case <-g.clock.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		now = g.clock.Now()
	}
	b.push(now)
	if waited {
		telemetry.ObserveGovernorWait(action, now.Sub(start))
	}
	return nil
}

// Reserve records a slot consumed by an out-of-band event without waiting.
func (g *Governor) Reserve(action, scope string) {
	if _, ok := g.limits[action]; !ok {
		return
	}
	// Waiters holding the guard re-evict after every sleep, so they see this stamp.
	g.bucket(action, scope).push(g.clock.Now())
}

// Usage reports how many calls are currently inside the window for (action, scope).
func (g *Governor) Usage(action, scope string) int {
	limit, ok := g.limits[action]
	if !ok {
		return 0
	}
	return g.bucket(action, scope).evict(g.clock.Now(), limit.Window)
}
