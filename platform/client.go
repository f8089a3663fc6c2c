// Package platform defines the chat-platform surface the status bars depend on,
// the failure taxonomy of that surface, and a decorator that routes every
// mutation through the rate governor.
package platform

import (
	"context"
	"time"
)

// Message is a handle to a platform message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}

// Client is the platform surface used by the bar engine. Every method returns
// either a *Error carrying a class or nil.
type Client interface {
	SendMessage(ctx context.Context, channelID, content string) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) (*Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
	// FetchRecentHistory returns up to limit messages, newest first.
	FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]*Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
}

// Outcome is the tagged result of a fetch.
type Outcome struct {
	Message *Message
	Class   ErrorClass
	Err     error
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool { return o.Class == ClassOK }

// Fetch retrieves a message and tags the result with its class.
func Fetch(ctx context.Context, c Client, channelID, messageID string) Outcome {
	msg, err := c.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		return Outcome{Class: Classify(err), Err: err}
	}
	return Outcome{Message: msg, Class: ClassOK}
}

// Latest returns the newest message of a channel, or nil for an empty channel.
func Latest(ctx context.Context, c Client, channelID string) (*Message, error) {
	msgs, err := c.FetchRecentHistory(ctx, channelID, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}
