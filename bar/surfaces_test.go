package bar_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
)

func TestHandleReaction(t *testing.T) {
	h := newHarness(t, bar.WithAdmins("admin"))
	ctx := context.Background()
	b := h.seed(t, "c1", h.th.Normal+" Working", true)
	h.mgr.Surfaces().Register(b.MessageID, "c1")

	tests := []struct {
		name    string
		message string
		user    string
		emoji   string
		want    bar.Control
		wantErr error
	}{
		{"unknown message ignored", "nope", "owner", h.th.Controls.Drop, bar.ControlNone, nil},
		{"unknown emoji ignored", b.MessageID, "owner", "🎉", bar.ControlNone, nil},
		{"stranger refused", b.MessageID, "stranger", h.th.Controls.Persist, bar.ControlPersist, bar.ErrNotAllowed},
		{"owner persists", b.MessageID, "owner", h.th.Controls.Persist, bar.ControlPersist, nil},
		{"admin drops", b.MessageID, "admin", h.th.Controls.Drop, bar.ControlDrop, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.mgr.HandleReaction(ctx, tt.message, tt.user, tt.emoji)
			if got != tt.want || !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleReaction = (%q, %v), want (%q, %v)", got, err, tt.want, tt.wantErr)
			}
		})
	}

	if !h.bar(t, "c1").Persisting {
		t.Error("owner persist control not applied")
	}
	if !h.mgr.DropPending("c1") {
		t.Error("drop control should schedule a drop")
	}

	if _, err := h.mgr.HandleReaction(ctx, b.MessageID, "owner", h.th.Controls.Delete); err != nil {
		t.Fatal(err)
	}
	if h.mgr.Registry().Has("c1") {
		t.Error("delete control should remove the bar")
	}
}

func TestSurfacesIndex(t *testing.T) {
	s := bar.NewSurfaces()
	s.Register("", "ignored")
	s.Register("m1", "c1")
	if ch, ok := s.Lookup("m1"); !ok || ch != "c1" {
		t.Errorf("Lookup = %q, %v", ch, ok)
	}
	s.Forget("m1")
	if s.Len() != 0 {
		t.Errorf("Len = %d", s.Len())
	}
}
