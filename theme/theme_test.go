package theme

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	th := Default()
	if err := th.Validate(); err != nil {
		t.Fatalf("default theme invalid: %v", err)
	}
	if len(th.Prefixes) < 3 || th.Prefixes[2] != th.Idle {
		t.Errorf("idle glyph should be the third catalog prefix, got %v", th.Prefixes)
	}
	if got := len(th.Controls.All()); got != 4 {
		t.Errorf("controls = %d, want 4", got)
	}

	// Default returns independent copies.
	th.Prefixes[0] = "changed"
	if Default().Prefixes[0] == "changed" {
		t.Error("Default must not share the prefix slice")
	}
}

func TestSplitPrefix(t *testing.T) {
	th := Default()
	tests := []struct {
		name       string
		content    string
		wantPrefix string
		wantBody   string
	}{
		{"catalog prefix", th.Idle + " Reading the backlog", th.Idle, "Reading the backlog"},
		{"unknown custom emoji", "<:Custom:123> hi", "<:Custom:123>", "hi"},
		{"no prefix", "just text", "", "just text"},
		{"prefix only", th.Sleep, th.Sleep, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, b := th.SplitPrefix(tt.content)
			if p != tt.wantPrefix || b != tt.wantBody {
				t.Errorf("SplitPrefix(%q) = (%q, %q), want (%q, %q)", tt.content, p, b, tt.wantPrefix, tt.wantBody)
			}
		})
	}
}

func TestWithPrefix(t *testing.T) {
	th := Default()
	if got := th.WithPrefix(th.Normal+" Working", th.Sleep); got != th.Sleep+" Working" {
		t.Errorf("WithPrefix swap = %q", got)
	}
	if got := th.WithPrefix("Working", th.Idle); got != th.Idle+" Working" {
		t.Errorf("WithPrefix prepend = %q", got)
	}
	if got := th.WithPrefix(th.Idle+" Working", ""); got != "Working" {
		t.Errorf("WithPrefix strip = %q", got)
	}
	if got := th.WithPrefix("", th.Idle); got != th.Idle {
		t.Errorf("WithPrefix empty body = %q", got)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "theme.yaml")
	if err := os.WriteFile(path, []byte("checkmark: \"✅\"\nconsole_header: \"Bars\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	th, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if th.Checkmark != "✅" || th.ConsoleHeader != "Bars" {
		t.Errorf("overlay not applied: %+v", th)
	}
	if th.Idle != Default().Idle {
		t.Errorf("unset keys should keep defaults, idle = %q", th.Idle)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Parse([]byte("checkmark: \"\"\n")); err == nil {
		t.Error("expected validation error for empty checkmark")
	}
}
