package bar_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
)

func TestSetBarCreatesAndUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trig := &countingTrigger{}
	h.mgr.SetConsole(trig)

	b, err := h.mgr.SetBar(ctx, "c1", "g1", "u1", "Working on\nthings")
	if err != nil {
		t.Fatalf("SetBar: %v", err)
	}
	if b.Content != h.th.Normal+" Working on things" || !b.Merged() || b.OwnerUserID != "u1" {
		t.Errorf("new bar = %+v", b)
	}
	wl, _ := h.store.GetWhitelist(ctx)
	if len(wl) != 1 || wl[0] != "c1" {
		t.Errorf("whitelist = %v", wl)
	}

	h.fp.Reset()
	b2, err := h.mgr.SetBar(ctx, "c1", "g1", "u2", h.th.Prefixes[3]+" Thinking")
	if err != nil {
		t.Fatal(err)
	}
	if b2.MessageID != b.MessageID || h.fp.Count("send") != 0 || h.fp.Count("edit") != 1 {
		t.Errorf("existing bar should be edited in place: %+v", h.fp.Calls())
	}
	if b2.CurrentPrefix != h.th.Prefixes[3] {
		t.Errorf("prefix = %q", b2.CurrentPrefix)
	}
	hist, _ := h.mgr.History(ctx, "c1", 10)
	if len(hist) != 2 || hist[0].Content != b2.Content {
		t.Errorf("history = %+v", hist)
	}
	if trig.n.Load() == 0 {
		t.Error("console should be triggered")
	}
}

func TestSetBarUnderIdleShowsIdlePrefix(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	b, err := h.mgr.SetBar(ctx, "c1", "g1", "u1", "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if b.CurrentPrefix != h.th.Idle {
		t.Errorf("prefix = %q, want idle", b.CurrentPrefix)
	}
}

func TestRemoveBar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.seed(t, "c1", h.th.Normal+" Working", false)
	_ = h.store.AddToWhitelist(ctx, "c1")

	if err := h.mgr.RemoveBar(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if h.mgr.Registry().Has("c1") || h.store.Bar("c1") != nil {
		t.Error("bar should be gone from registry and store")
	}
	if _, ok := h.fp.Content("c1", b.MessageID); ok {
		t.Error("bar message should be deleted")
	}
	if _, ok := h.fp.Content("c1", b.CheckmarkMessageID); ok {
		t.Error("marker message should be deleted")
	}
	if err := h.mgr.RemoveBar(ctx, "c1"); !errors.Is(err, bar.ErrUnknownBar) {
		t.Errorf("second remove = %v", err)
	}
}

func TestGlobalUpdateKeepsPrefixes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Prefixes[1]+" Old", true)
	h.seed(t, "c2", h.th.Prefixes[2]+" Old", false)

	n, err := h.mgr.GlobalUpdate(ctx, "System update")
	if err != nil || n != 2 {
		t.Fatalf("GlobalUpdate = %d, %v", n, err)
	}
	if got := h.bar(t, "c1"); got.Content != h.th.Prefixes[1]+" System update" {
		t.Errorf("c1 = %q", got.Content)
	}
	c2 := h.bar(t, "c2")
	if c2.Content != h.th.Prefixes[2]+" System update" {
		t.Errorf("c2 = %q", c2.Content)
	}
	if text, _ := h.fp.Content("c2", c2.MessageID); text != c2.Content {
		t.Errorf("unmerged bar should not gain a marker: %q", text)
	}
	master, _ := h.store.GetMasterBar(ctx)
	if master != "System update" {
		t.Errorf("master = %q", master)
	}
}

func TestTogglePersist(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c1", h.th.Normal+" Working", true)
	on, err := h.mgr.TogglePersist(context.Background(), "c1")
	if err != nil || !on {
		t.Fatalf("TogglePersist = %v, %v", on, err)
	}
	if !h.store.Bar("c1").Persisting {
		t.Error("persisting not saved")
	}
}

func TestMarkActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Normal+" Working", true)

	if err := h.mgr.MarkActivity(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if !h.bar(t, "c1").HasNotification {
		t.Error("activity should set the notification")
	}
	if h.mgr.DropPending("c1") {
		t.Error("non-persisting bars should not auto drop")
	}

	_, _ = h.mgr.TogglePersist(ctx, "c1")
	if err := h.mgr.MarkActivity(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if !h.mgr.DropPending("c1") {
		t.Error("persisting bar should request a drop")
	}
}

func TestGlobalUpdateDuringSleepSurvivesWake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Prefixes[1]+" Old", true)

	if _, err := h.mgr.EnterSleep(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.mgr.GlobalUpdate(ctx, "Back soon"); err != nil {
		t.Fatal(err)
	}
	// Sleeping again toggles back to normal.
	if _, err := h.mgr.EnterSleep(ctx); err != nil {
		t.Fatal(err)
	}
	got := h.bar(t, "c1")
	if got.Content != h.th.Prefixes[1]+" Back soon" || got.CurrentPrefix != h.th.Prefixes[1] {
		t.Errorf("awake bar = %+v", got)
	}
	if text, _ := h.fp.Content("c1", got.MessageID); text != got.Render(h.th, true) {
		t.Errorf("live text = %q", text)
	}
}

func TestUpdateBarDuringSleepSurvivesWake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Prefixes[2]+" Old", true)

	if _, err := h.mgr.EnterSleep(ctx); err != nil {
		t.Fatal(err)
	}
	asleep, err := h.mgr.UpdateBar(ctx, "c1", h.th.Prefixes[4]+" New plan")
	if err != nil {
		t.Fatal(err)
	}
	if asleep.CurrentPrefix != h.th.Sleep {
		t.Errorf("update while asleep should keep the sleep prefix, got %q", asleep.CurrentPrefix)
	}
	if _, err := h.mgr.AwakeAll(ctx); err != nil {
		t.Fatal(err)
	}
	got := h.bar(t, "c1")
	if got.Content != h.th.Prefixes[4]+" New plan" || got.CurrentPrefix != h.th.Prefixes[4] {
		t.Errorf("awake bar = %+v", got)
	}
	if stored := h.store.Bar("c1"); stored.Content != got.Content {
		t.Errorf("stored content = %q", stored.Content)
	}
}
