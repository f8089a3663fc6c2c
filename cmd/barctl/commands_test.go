package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type seenRequest struct {
	Method string
	Path   string
	Query  string
	Token  string
	Body   map[string]any
}

func fakeAPI(t *testing.T, status int, reply string) (*httptest.Server, func() []seenRequest) {
	t.Helper()
	var mu sync.Mutex
	var seen []seenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := seenRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Token: r.Header.Get("X-Admin-Token")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &req.Body)
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func executeCommand(args ...string) (string, string, error) {
	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCommandsHitRoutes(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantMethod string
		wantPath   string
		wantQuery  string
		wantBody   map[string]any
	}{
		{"status", []string{"status"}, http.MethodGet, "/api/status", "", nil},
		{"bars", []string{"bars"}, http.MethodGet, "/api/bars", "", nil},
		{"emojis", []string{"emojis"}, http.MethodGet, "/api/emojis", "", nil},
		{"update", []string{"update", "42", "Working", "late"}, http.MethodPost, "/api/bar/42/update", "", map[string]any{"text": "Working late"}},
		{"drop", []string{"drop", "42"}, http.MethodPost, "/api/bar/42/drop", "", nil},
		{"drop keep check", []string{"drop", "42", "--keep-check"}, http.MethodPost, "/api/bar/42/drop", "", map[string]any{"move_check": false}},
		{"history", []string{"history", "42", "--limit", "5"}, http.MethodGet, "/api/bar/42/history", "limit=5", nil},
		{"global", []string{"global", "all", "hands"}, http.MethodPost, "/api/global/update", "", map[string]any{"text": "all hands"}},
		{"state", []string{"state", "sleep"}, http.MethodPost, "/api/global/state", "", map[string]any{"state": "sleep"}},
		{"reconcile", []string{"reconcile"}, http.MethodPost, "/api/reconcile", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, seen := fakeAPI(t, http.StatusOK, `{"status":"ok"}`)
			out, _, err := executeCommand(append(tt.args, "--url", srv.URL, "--token", "secret")...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if !strings.Contains(out, `"status": "ok"`) {
				t.Errorf("output not pretty-printed: %q", out)
			}
			reqs := seen()
			if len(reqs) != 1 {
				t.Fatalf("requests = %d", len(reqs))
			}
			got := reqs[0]
			if got.Method != tt.wantMethod || got.Path != tt.wantPath || got.Query != tt.wantQuery || got.Token != "secret" {
				t.Errorf("request = %+v", got)
			}
			if len(tt.wantBody) != len(got.Body) {
				t.Fatalf("body = %v, want %v", got.Body, tt.wantBody)
			}
			for k, v := range tt.wantBody {
				if got.Body[k] != v {
					t.Errorf("body[%s] = %v, want %v", k, got.Body[k], v)
				}
			}
		})
	}
}

func TestAPIErrorReported(t *testing.T) {
	srv, _ := fakeAPI(t, http.StatusNotFound, `{"error":"unknown bar"}`)
	_, errOut, err := executeCommand("update", "42", "x", "--url", srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(errOut, "404") || !strings.Contains(errOut, "unknown bar") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestArgumentValidation(t *testing.T) {
	if _, _, err := executeCommand("update", "42"); err == nil {
		t.Error("update without text should fail")
	}
	if _, _, err := executeCommand("status", "extra"); err == nil {
		t.Error("status takes no arguments")
	}
}
