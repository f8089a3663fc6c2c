package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/testutil"
)

func newTestClient(t *testing.T) (*Client, *testutil.MockDiscordServer) {
	t.Helper()
	srv := testutil.NewMockDiscordServer(t)
	c, err := New("test-token")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Session().MaxRestRetries = 0
	return c, srv
}

func TestSendAndEdit(t *testing.T) {
	c, srv := newTestClient(t)
	srv.RespondMessage(http.MethodPost, "/channels/100/messages", "200", "100", "hello")
	srv.RespondMessage(http.MethodPatch, "/channels/100/messages/200", "200", "100", "edited")

	ctx := context.Background()
	msg, err := c.SendMessage(ctx, "100", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID != "200" || msg.ChannelID != "100" || msg.Content != "hello" || msg.AuthorID != "bot" {
		t.Errorf("unexpected message: %+v", msg)
	}

	msg, err = c.EditMessage(ctx, "100", "200", "edited")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if msg.Content != "edited" {
		t.Errorf("edited content = %q", msg.Content)
	}
}

func TestFetchErrorsAreClassified(t *testing.T) {
	c, srv := newTestClient(t)
	srv.RespondError(http.MethodGet, "/channels/100/messages/gone", http.StatusNotFound, discordgo.ErrCodeUnknownMessage, "Unknown Message")
	srv.RespondError(http.MethodGet, "/channels/100/messages/locked", http.StatusForbidden, discordgo.ErrCodeMissingPermissions, "Missing Permissions")
	srv.RespondError(http.MethodGet, "/channels/100/messages/flaky", http.StatusInternalServerError, 0, "Internal Server Error")

	tests := []struct {
		id   string
		want platform.ErrorClass
	}{
		{"gone", platform.ClassNotFound},
		{"locked", platform.ClassForbidden},
		{"flaky", platform.ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := c.FetchMessage(context.Background(), "100", tt.id)
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *platform.Error
			if !errors.As(err, &pe) {
				t.Fatalf("error %v is not a *platform.Error", err)
			}
			if pe.Class != tt.want {
				t.Errorf("class = %v, want %v", pe.Class, tt.want)
			}
		})
	}
}

func TestFetchRecentHistory(t *testing.T) {
	c, srv := newTestClient(t)
	srv.RespondJSON(http.MethodGet, "/channels/100/messages", http.StatusOK, []map[string]any{
		{"id": "3", "channel_id": "100", "content": "newest"},
		{"id": "2", "channel_id": "100", "content": "older"},
	})

	msgs, err := c.FetchRecentHistory(context.Background(), "100", 2)
	if err != nil {
		t.Fatalf("FetchRecentHistory: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "3" {
		t.Fatalf("unexpected history: %+v", msgs)
	}
}

func TestDeleteMessage(t *testing.T) {
	c, srv := newTestClient(t)
	srv.RespondJSON(http.MethodDelete, "/channels/100/messages/200", http.StatusNoContent, nil)
	srv.RespondError(http.MethodDelete, "/channels/100/messages/404", http.StatusNotFound, discordgo.ErrCodeUnknownMessage, "Unknown Message")

	if err := c.DeleteMessage(context.Background(), "100", "200"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if err := c.DeleteMessage(context.Background(), "100", "404"); !platform.IsNotFound(err) {
		t.Fatalf("DeleteMessage(404) = %v, want not found", err)
	}
}

func TestClassifyNonRESTError(t *testing.T) {
	err := classify("send", errors.New("dial tcp: connection refused"))
	if platform.Classify(err) != platform.ClassTransient {
		t.Errorf("network errors must be transient, got %v", platform.Classify(err))
	}
}
