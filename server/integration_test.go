package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/db"
	"github.com/SeraphimOfTines/NyxOS-sub000/testutil"
)

// TestAPIAgainstPostgres drives the router with a real manager backed by
// Postgres. Skips unless TEST_PG_DSN is set.
func TestAPIAgainstPostgres(t *testing.T) {
	database := testutil.SetupTestDB(t)
	store := db.NewStore(database)
	fp := testutil.NewFakePlatform()
	mgr := bar.NewManager(store, fp, bar.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(mgr.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewRouter(ctx, Deps{Service: mgr, Health: store})

	if rr := do(h, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d %s", rr.Code, rr.Body.String())
	}

	const channel = "123456789012345678"
	if _, err := mgr.SetBar(ctx, channel, "223456789012345678", "323456789012345678", "first"); err != nil {
		t.Fatalf("SetBar: %v", err)
	}
	if rr := do(h, http.MethodPost, "/api/bar/"+channel+"/update", `{"text":"second"}`); rr.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rr.Code, rr.Body.String())
	}

	rr := do(h, http.MethodGet, "/api/bar/"+channel+"/history?limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("history = %d", rr.Code)
	}
	var entries []bar.HistoryEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) < 2 || !strings.Contains(entries[0].Content, "second") {
		t.Errorf("history = %+v", entries)
	}

	if rr := do(h, http.MethodPost, "/api/reconcile", ""); rr.Code != http.StatusOK {
		t.Errorf("reconcile = %d %s", rr.Code, rr.Body.String())
	}
	stored, err := store.GetBar(ctx, channel)
	if err != nil || stored == nil {
		t.Fatalf("stored bar = %v, %v", stored, err)
	}
	if !strings.Contains(stored.Content, "second") {
		t.Errorf("stored content = %q", stored.Content)
	}
}
