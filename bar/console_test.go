package bar_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
)

func TestLinesGroupsTokens(t *testing.T) {
	tokens := []string{"a", "b", "c", "d", "e", "f", "g"}
	lines := bar.Lines(tokens, 6)
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0] != "a  b  c  d  e  f" || lines[1] != "g" {
		t.Errorf("unexpected grouping: %q", lines)
	}
}

func TestSegmentsSplitAtLimit(t *testing.T) {
	line := strings.Repeat("x", 99)
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = line
	}
	const limit = 1000
	segs := bar.Segments("HEADER", lines, limit)

	total := 0
	for i, s := range segs {
		if n := utf8.RuneCountInString(s); n > limit {
			t.Errorf("segment %d has %d runes", i, n)
		}
		total += utf8.RuneCountInString(s)
	}
	want := (total + limit - 1) / limit
	if len(segs) != want {
		t.Errorf("segments = %d, want %d", len(segs), want)
	}
	if !strings.HasPrefix(segs[0], "HEADER\n") {
		t.Errorf("first segment should carry the header: %q", segs[0][:20])
	}
}

func TestConsoleTokenFormat(t *testing.T) {
	h := newHarness(t)
	c := bar.NewConsole("console", h.mgr)

	b := &bar.State{GuildID: "1", ChannelID: "2", MessageID: "3"}
	want := h.th.Idle + " https://discord.com/channels/1/2/3"
	if got := c.Token(b); got != want {
		t.Errorf("Token = %q, want %q", got, want)
	}

	b.CurrentPrefix = h.th.Normal
	b.HasNotification = true
	want = h.th.Normal + h.th.Notification + " https://discord.com/channels/1/2/3"
	if got := c.Token(b); got != want {
		t.Errorf("Token = %q, want %q", got, want)
	}
}

func TestConsoleOrdersWhitelistFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		h.seed(t, id, h.th.Normal+" "+id, true)
	}
	_ = h.store.AddToWhitelist(ctx, "c")
	_ = h.store.SetMasterBar(ctx, "Master text")

	c := bar.NewConsole("console", h.mgr)
	segs, err := c.Render(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 1 {
		t.Fatalf("segments = %d", len(segs))
	}
	lines := strings.Split(segs[0], "\n")
	if lines[0] != h.th.ConsoleHeader || lines[1] != "Master text" {
		t.Errorf("header lines = %q", lines[:2])
	}
	tokens := strings.Split(lines[2], "  ")
	if !strings.Contains(tokens[0], "/c/") || !strings.Contains(tokens[1], "/a/") || !strings.Contains(tokens[2], "/b/") {
		t.Errorf("order = %v", tokens)
	}
}

func TestConsoleRefreshTracksMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		h.seed(t, fmt.Sprintf("%03d", i), h.th.Normal+" bar", true)
	}
	c := bar.NewConsole("console", h.mgr, bar.WithMessageLimit(800))

	n, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ids := c.Tracked()
	if n < 2 || len(ids) != n {
		t.Fatalf("expected a multi-message console, got n=%d ids=%v", n, ids)
	}
	var persisted []string
	if ok, _ := h.store.GetSetting(ctx, bar.SettingConsoleIDs, &persisted); !ok || len(persisted) != len(ids) {
		t.Errorf("persisted ids = %v", persisted)
	}

	// Nothing changed: no platform calls.
	h.fp.Reset()
	if _, err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if len(h.fp.Calls()) != 0 {
		t.Errorf("unchanged console made calls: %+v", h.fp.Calls())
	}
}

func TestConsoleTransientEditNeverDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		h.seed(t, fmt.Sprintf("%03d", i), h.th.Normal+" bar", true)
	}
	c := bar.NewConsole("console", h.mgr, bar.WithMessageLimit(800))
	if _, err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	before := c.Tracked()

	// Change every token so each segment needs an edit, and make the first fail.
	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	h.fp.EditErr[before[0]] = platform.NewError(platform.ClassTransient, "edit", errors.New("503 Service Unavailable"))
	h.fp.Reset()

	if _, err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if got := h.fp.Count("send"); got != 0 {
		t.Errorf("sends = %d, want 0 on transient edit failure", got)
	}
	after := c.Tracked()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("tracked ids changed: %v -> %v", before, after)
	}
}

func TestConsoleReplacesDeletedMessageInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		h.seed(t, fmt.Sprintf("%03d", i), h.th.Normal+" bar", true)
	}
	c := bar.NewConsole("console", h.mgr, bar.WithMessageLimit(800))
	if _, err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	before := c.Tracked()
	h.fp.Remove("console", before[0])
	if _, err := h.mgr.EnterIdle(ctx); err != nil {
		t.Fatal(err)
	}
	h.fp.Reset()

	if _, err := c.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	after := c.Tracked()
	if len(after) != len(before) {
		t.Fatalf("tracked = %v, want %d entries", after, len(before))
	}
	if after[0] == before[0] {
		t.Error("deleted console message should be replaced")
	}
	for i := 1; i < len(before); i++ {
		if after[i] != before[i] {
			t.Errorf("segment %d identity changed", i)
		}
	}
	if h.fp.Count("send") != 1 {
		t.Errorf("sends = %d, want 1", h.fp.Count("send"))
	}
}

func TestConsoleDisabledWithoutChannel(t *testing.T) {
	h := newHarness(t)
	c := bar.NewConsole("", h.mgr)
	if c.Enabled() {
		t.Fatal("console without channel should be disabled")
	}
	c.Trigger()
	if n, err := c.Refresh(context.Background()); n != 0 || err != nil {
		t.Errorf("Refresh = %d, %v", n, err)
	}
}

func TestConsoleRunLogsThroughManagerLogger(t *testing.T) {
	var buf bytes.Buffer
	h := newHarness(t, bar.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	c := bar.NewConsole("", h.mgr)
	c.Run(context.Background())

	out := buf.String()
	if !strings.Contains(out, "console disabled") {
		t.Fatalf("log output = %q", out)
	}
	if !strings.Contains(out, "component=bar") || !strings.Contains(out, "subsystem=console") {
		t.Errorf("console log lost its attributes: %q", out)
	}
}
