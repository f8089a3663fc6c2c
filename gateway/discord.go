package gateway

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Attach registers the gateway's handlers on a Discord session. ctx bounds
// the work each event triggers.
func (g *Gateway) Attach(ctx context.Context, s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		g.HandleReady()
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if ev, ok := messageEvent(m); ok {
			g.HandleMessage(ctx, ev)
		}
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if ev, ok := reactionEvent(r); ok {
			g.HandleReaction(ctx, ev)
		}
	})
}

func messageEvent(m *discordgo.MessageCreate) (MessageEvent, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return MessageEvent{}, false
	}
	return MessageEvent{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		AuthorBot: m.Author.Bot,
		Content:   m.Content,
	}, true
}

func reactionEvent(r *discordgo.MessageReactionAdd) (ReactionEvent, bool) {
	if r == nil || r.MessageReaction == nil {
		return ReactionEvent{}, false
	}
	emoji := r.Emoji.Name
	if r.Emoji.ID != "" {
		emoji = r.Emoji.MessageFormat()
	}
	return ReactionEvent{
		MessageID: r.MessageID,
		ChannelID: r.ChannelID,
		UserID:    r.UserID,
		Emoji:     emoji,
	}, true
}
