package bar_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/testutil"
	"github.com/SeraphimOfTines/NyxOS-sub000/theme"
)

type harness struct {
	mgr   *bar.Manager
	store *testutil.MemStore
	fp    *testutil.FakePlatform
	clock *clockwork.FakeClock
	th    *theme.Theme
}

func newHarness(t *testing.T, opts ...bar.Option) *harness {
	t.Helper()
	h := &harness{
		store: testutil.NewMemStore(),
		fp:    testutil.NewFakePlatform(),
		clock: clockwork.NewFakeClock(),
		th:    theme.Default(),
	}
	opts = append([]bar.Option{bar.WithClock(h.clock), bar.WithTheme(h.th)}, opts...)
	h.mgr = bar.NewManager(h.store, h.fp, opts...)
	t.Cleanup(h.mgr.Close)
	return h
}

// seed posts a bar message (and a separate marker when merged is false) and
// registers the bar in both the store and the registry.
func (h *harness) seed(t *testing.T, channelID, text string, merged bool) *bar.State {
	t.Helper()
	prefix, _ := h.th.SplitPrefix(text)
	b := &bar.State{
		ChannelID:     channelID,
		GuildID:       "guild",
		Content:       text,
		CurrentPrefix: prefix,
		OwnerUserID:   "owner",
	}
	if merged {
		b.MessageID = h.fp.Post(channelID, b.Render(h.th, true))
		b.CheckmarkMessageID = b.MessageID
	} else {
		b.MessageID = h.fp.Post(channelID, b.Render(h.th, false))
		b.CheckmarkMessageID = h.fp.Post(channelID, h.th.Checkmark)
	}
	h.store.Seed(b)
	h.mgr.Registry().Put(b)
	return b
}

func (h *harness) bar(t *testing.T, channelID string) *bar.State {
	t.Helper()
	b, ok := h.mgr.Registry().Get(channelID)
	if !ok {
		t.Fatalf("bar %s missing from registry", channelID)
	}
	return b
}

type countingTrigger struct{ n atomic.Int32 }

func (c *countingTrigger) Trigger() { c.n.Add(1) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
