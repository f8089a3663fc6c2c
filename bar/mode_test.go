package bar_test

import (
	"context"
	"testing"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
)

func TestSleepToggleRestoresState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Prefixes[3]+" Thinking hard", true)
	h.mgr.Registry().Update("c1", func(s *bar.State) { s.Persisting = true })
	before := h.bar(t, "c1")

	n, err := h.mgr.EnterSleep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("EnterSleep = %d, %v", n, err)
	}
	asleep := h.bar(t, "c1")
	if !asleep.IsSleeping || asleep.Persisting || asleep.CurrentPrefix != h.th.Sleep {
		t.Errorf("unexpected sleeping bar: %+v", asleep)
	}
	if asleep.PreviousState == nil {
		t.Fatal("sleep from normal must snapshot")
	}
	if text, _ := h.fp.Content("c1", asleep.MessageID); text != asleep.Render(h.th, true) {
		t.Errorf("live text = %q", text)
	}
	if h.mgr.Mode() != bar.ModeSleep {
		t.Errorf("mode = %s", h.mgr.Mode())
	}

	// Sleeping again toggles back.
	if _, err := h.mgr.EnterSleep(ctx); err != nil {
		t.Fatal(err)
	}
	after := h.bar(t, "c1")
	if after.Content != before.Content || after.CurrentPrefix != before.CurrentPrefix || after.Persisting != before.Persisting {
		t.Errorf("round trip mismatch:\nbefore %+v\nafter  %+v", before, after)
	}
	if after.PreviousState != nil || after.IsSleeping {
		t.Errorf("snapshot should be cleared: %+v", after)
	}
	if h.mgr.Mode() != bar.ModeNormal {
		t.Errorf("mode = %s, want normal", h.mgr.Mode())
	}

	var persisted string
	if ok, _ := h.store.GetSetting(ctx, bar.SettingSystemMode, &persisted); !ok || persisted != "normal" {
		t.Errorf("persisted mode = %q", persisted)
	}
}

func TestIdleThenAwakeRestoresWithoutSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Prefixes[5]+" Reading", true)
	before := h.bar(t, "c1")

	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	idle := h.bar(t, "c1")
	if idle.PreviousState != nil {
		t.Error("idle must not snapshot")
	}
	if idle.Content != before.Content || idle.CurrentPrefix != h.th.Idle {
		t.Errorf("idle bar = %+v", idle)
	}

	// Idle is idempotent rather than a toggle.
	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	if h.mgr.Mode() != bar.ModeIdle {
		t.Errorf("mode = %s, want idle", h.mgr.Mode())
	}

	if _, err := h.mgr.AwakeAll(ctx); err != nil {
		t.Fatal(err)
	}
	after := h.bar(t, "c1")
	if after.Display(h.th) != before.Display(h.th) || after.CurrentPrefix != before.CurrentPrefix {
		t.Errorf("awake did not restore: before %q after %q", before.Display(h.th), after.Display(h.th))
	}
}

func TestSleepFromIdleDoesNotSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Normal+" Working", true)

	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.mgr.EnterSleep(ctx); err != nil {
		t.Fatal(err)
	}
	got := h.bar(t, "c1")
	if got.PreviousState != nil {
		t.Errorf("sleep from idle snapshotted: %+v", got.PreviousState)
	}
	if got.IsSleeping {
		t.Error("a bar without a snapshot must not be marked sleeping")
	}
	if got.CurrentPrefix != h.th.Sleep {
		t.Errorf("prefix = %q, want sleep glyph", got.CurrentPrefix)
	}
}

func TestPersistSurvivesIdleSleepAwake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Normal+" Working", true)
	h.mgr.Registry().Update("c1", func(s *bar.State) { s.Persisting = true })

	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.mgr.EnterSleep(ctx); err != nil {
		t.Fatal(err)
	}
	asleep := h.bar(t, "c1")
	if asleep.IsSleeping || asleep.PreviousState != nil {
		t.Errorf("asleep without snapshot: IsSleeping=%v PreviousState=%+v", asleep.IsSleeping, asleep.PreviousState)
	}

	// Activity while asleep must not move the bar.
	if err := h.mgr.MarkActivity(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if h.mgr.DropPending("c1") {
		t.Error("persisting bar requested a drop while asleep")
	}

	if _, err := h.mgr.AwakeAll(ctx); err != nil {
		t.Fatal(err)
	}
	after := h.bar(t, "c1")
	if !after.Persisting {
		t.Errorf("persisting lost across idle, sleep and awake: %+v", after)
	}
	if after.CurrentPrefix != h.th.Normal || after.IsSleeping {
		t.Errorf("awake bar = %+v", after)
	}
	stored, _ := h.store.GetBar(ctx, "c1")
	if stored == nil || !stored.Persisting {
		t.Errorf("stored bar = %+v", stored)
	}
}

func TestTransitionSkipsFailingBars(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	good := h.seed(t, "c1", h.th.Normal+" One", true)
	bad := h.seed(t, "c2", h.th.Normal+" Two", true)
	h.fp.EditErr[bad.MessageID] = platform.NewError(platform.ClassForbidden, "edit", nil)

	n, err := h.mgr.EnterIdle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if text, _ := h.fp.Content("c1", good.MessageID); text != h.bar(t, "c1").Render(h.th, true) {
		t.Errorf("good bar not re-rendered: %q", text)
	}
	if h.bar(t, "c2").CurrentPrefix != h.th.Idle {
		t.Error("state of a bar with a failed edit should still follow the mode")
	}
}

func TestSetModeDoesNotToggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "c1", h.th.Normal+" Working", true)

	if _, err := h.mgr.SetMode(ctx, bar.ModeSleep); err != nil {
		t.Fatal(err)
	}
	if _, err := h.mgr.SetMode(ctx, bar.ModeSleep); err != nil {
		t.Fatal(err)
	}
	if h.mgr.Mode() != bar.ModeSleep {
		t.Errorf("mode = %s, want sleep", h.mgr.Mode())
	}
	if _, err := h.mgr.SetMode(ctx, bar.Mode("dance")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLoadRestoresModeAndBars(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Seed(&bar.State{ChannelID: "c1", MessageID: "m1", Content: "x"})
	_ = h.store.SetSetting(ctx, bar.SettingSystemMode, "idle")

	n, err := h.mgr.Load(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	if h.mgr.Mode() != bar.ModeIdle {
		t.Errorf("mode = %s, want idle", h.mgr.Mode())
	}
}
