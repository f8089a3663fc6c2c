package platform

import (
	"context"

	"github.com/SeraphimOfTines/NyxOS-sub000/ratelimit"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

// Gate reserves a rate slot before a call. *ratelimit.Governor satisfies it.
type Gate interface {
	Await(ctx context.Context, action, scope string) error
}

// governed awaits a slot scoped by channel before every mutation. Reads are
// not gated.
type governed struct {
	next Client
	gate Gate
}

// Governed wraps c so sends, edits, deletes and reactions wait on gate first.
func Governed(c Client, gate Gate) Client {
	return &governed{next: c, gate: gate}
}

func (g *governed) SendMessage(ctx context.Context, channelID, content string) (*Message, error) {
	if err := g.gate.Await(ctx, ratelimit.ActionSendMessage, channelID); err != nil {
		return nil, err
	}
	msg, err := g.next.SendMessage(ctx, channelID, content)
	telemetry.CountPlatformCall("send", Classify(err).String())
	return msg, err
}

func (g *governed) EditMessage(ctx context.Context, channelID, messageID, content string) (*Message, error) {
	if err := g.gate.Await(ctx, ratelimit.ActionEditMessage, channelID); err != nil {
		return nil, err
	}
	msg, err := g.next.EditMessage(ctx, channelID, messageID, content)
	telemetry.CountPlatformCall("edit", Classify(err).String())
	return msg, err
}

func (g *governed) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := g.gate.Await(ctx, ratelimit.ActionDeleteMessage, channelID); err != nil {
		return err
	}
	err := g.next.DeleteMessage(ctx, channelID, messageID)
	telemetry.CountPlatformCall("delete", Classify(err).String())
	return err
}

func (g *governed) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := g.gate.Await(ctx, ratelimit.ActionAddReaction, channelID); err != nil {
		return err
	}
	err := g.next.AddReaction(ctx, channelID, messageID, emoji)
	telemetry.CountPlatformCall("react", Classify(err).String())
	return err
}

func (g *governed) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	msg, err := g.next.FetchMessage(ctx, channelID, messageID)
	telemetry.CountPlatformCall("fetch", Classify(err).String())
	return msg, err
}

func (g *governed) FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]*Message, error) {
	msgs, err := g.next.FetchRecentHistory(ctx, channelID, limit)
	telemetry.CountPlatformCall("history", Classify(err).String())
	return msgs, err
}
