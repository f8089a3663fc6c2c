// Package discord implements platform.Client on top of the Discord REST API.
package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
)

// Intents requested when the gateway connection is opened.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentMessageContent

// Client adapts a discordgo session to platform.Client.
type Client struct {
	session *discordgo.Session
}

// New creates a session for a bot token. The gateway is not opened here.
func New(token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = Intents
	return &Client{session: s}, nil
}

// Session exposes the underlying session for gateway handlers.
func (c *Client) Session() *discordgo.Session { return c.session }

// Open connects the gateway websocket.
func (c *Client) Open() error { return c.session.Open() }

// Close disconnects the gateway websocket.
func (c *Client) Close() error { return c.session.Close() }

// BotUserID returns the connected bot's user id, or "" before the gateway is ready.
func (c *Client) BotUserID() string {
	if c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) (*platform.Message, error) {
	m, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("send", err)
	}
	return toMessage(m), nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) (*platform.Message, error) {
	m, err := c.session.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("edit", err)
	}
	return toMessage(m), nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("fetch", err)
	}
	return toMessage(m), nil
}

func (c *Client) FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]*platform.Message, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("history", err)
	}
	out := make([]*platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return classify("react", err)
	}
	return nil
}

// SetPresence changes the bot's status ("online", "idle", "dnd").
func (c *Client) SetPresence(status string) error {
	return c.session.UpdateStatusComplex(discordgo.UpdateStatusData{Status: status})
}

func toMessage(m *discordgo.Message) *platform.Message {
	if m == nil {
		return nil
	}
	out := &platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
	}
	return out
}

// classify maps discordgo failures onto the platform taxonomy. JSON error codes
// win over HTTP status; non-REST failures (network, timeouts) are transient.
func classify(op string, err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return platform.NewError(platform.ClassTransient, op, err)
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
			return platform.NewError(platform.ClassNotFound, op, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return platform.NewError(platform.ClassForbidden, op, err)
		}
	}
	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return platform.NewError(platform.ClassNotFound, op, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return platform.NewError(platform.ClassForbidden, op, err)
		}
	}
	return platform.NewError(platform.ClassTransient, op, err)
}
