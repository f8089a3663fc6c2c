package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

// MockDiscordServer is a test server standing in for the Discord REST API.
// Creating one points discordgo's channel endpoints at it until the test ends.
type MockDiscordServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []string
}

// NewMockDiscordServer creates a new mock Discord API server.
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()
	m := &MockDiscordServer{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		m.mu.Lock()
		m.requests = append(m.requests, key)
		handler, ok := m.handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	prev := discordgo.EndpointChannels
	discordgo.EndpointChannels = m.URL + "/channels/"
	t.Cleanup(func() {
		discordgo.EndpointChannels = prev
		m.Close()
	})
	return m
}

// Handle registers a handler for "METHOD /path".
func (m *MockDiscordServer) Handle(method, path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = h
}

// Requests returns the "METHOD /path" keys received so far.
func (m *MockDiscordServer) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// RespondJSON answers method+path with status and body encoded as JSON.
func (m *MockDiscordServer) RespondJSON(method, path string, status int, body any) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
		}
	})
}

// RespondMessage answers with a Discord message object.
func (m *MockDiscordServer) RespondMessage(method, path, id, channelID, content string) {
	m.RespondJSON(method, path, http.StatusOK, map[string]any{
		"id":         id,
		"channel_id": channelID,
		"content":    content,
		"author":     map[string]string{"id": "bot"},
	})
}

// RespondError answers with a Discord JSON error body.
func (m *MockDiscordServer) RespondError(method, path string, status, code int, message string) {
	m.RespondJSON(method, path, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
