// Package gateway turns chat events into bar operations: channel activity
// marks notifications, prefixed text commands drive the bar lifecycle and
// reactions on bar messages run their controls.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/ratelimit"
)

// DefaultPrefix starts every text command.
const DefaultPrefix = "&"

// Bars is the bar engine surface used by the gateway. *bar.Manager
// satisfies it.
type Bars interface {
	Bar(channelID string) (*bar.State, bool)
	IsAdmin(userID string) bool
	SetBar(ctx context.Context, channelID, guildID, ownerID, text string) (*bar.State, error)
	RemoveBar(ctx context.Context, channelID string) error
	RequestDrop(ctx context.Context, channelID string, opts bar.DropOptions) error
	DropAll(ctx context.Context, opts bar.DropOptions) int
	TogglePersist(ctx context.Context, channelID string) (bool, error)
	EnterIdle(ctx context.Context) (int, error)
	EnterSleep(ctx context.Context) (int, error)
	AwakeAll(ctx context.Context) (int, error)
	Mode() bar.Mode
	GlobalUpdate(ctx context.Context, text string) (int, error)
	MarkActivity(ctx context.Context, channelID string) error
	HandleReaction(ctx context.Context, messageID, userID, emoji string) (bar.Control, error)
}

// Gate is the governor surface for calls made outside platform.Client.
// *ratelimit.Governor satisfies it.
type Gate interface {
	Await(ctx context.Context, action, scope string) error
	Reserve(action, scope string)
}

// Presence sets the bot status shown in the member list.
type Presence interface {
	SetPresence(status string) error
}

// MessageEvent is a newly created chat message.
type MessageEvent struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// ReactionEvent is a reaction added to a message.
type ReactionEvent struct {
	MessageID string
	ChannelID string
	UserID    string
	Emoji     string
}

// Gateway dispatches events to the bar engine.
type Gateway struct {
	bars     Bars
	client   platform.Client
	gate     Gate
	presence Presence
	prefix   string
	botID    func() string
	log      *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPrefix sets the command prefix.
func WithPrefix(p string) Option {
	return func(g *Gateway) {
		if p != "" {
			g.prefix = p
		}
	}
}

// WithBotID tells the gateway how to recognize its own events.
func WithBotID(fn func() string) Option { return func(g *Gateway) { g.botID = fn } }

// WithGate routes presence updates and session events through the governor.
func WithGate(gate Gate) Option { return func(g *Gateway) { g.gate = gate } }

// WithPresence mirrors the deployment mode into the bot status.
func WithPresence(p Presence) Option { return func(g *Gateway) { g.presence = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

// New creates a Gateway. client is used for command replies.
func New(bars Bars, client platform.Client, opts ...Option) *Gateway {
	g := &Gateway{
		bars:   bars,
		client: client,
		prefix: DefaultPrefix,
		botID:  func() string { return "" },
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.With(slog.String("component", "gateway"))
	return g
}

func (g *Gateway) isSelf(userID string) bool {
	id := g.botID()
	return id != "" && id == userID
}

// HandleMessage runs a command or records activity in a bar channel.
func (g *Gateway) HandleMessage(ctx context.Context, ev MessageEvent) {
	if ev.AuthorBot || g.isSelf(ev.AuthorID) {
		return
	}
	if cmd, ok := ParseCommand(g.prefix, ev.Content); ok {
		g.runCommand(ctx, ev, cmd)
		return
	}
	if err := g.bars.MarkActivity(ctx, ev.ChannelID); err != nil && !errors.Is(err, bar.ErrUnknownBar) {
		g.log.Warn("mark activity failed", slog.String("channel", ev.ChannelID), slog.Any("err", err))
	}
}

// HandleReaction runs the control bound to a reaction on a bar message.
func (g *Gateway) HandleReaction(ctx context.Context, ev ReactionEvent) {
	if g.isSelf(ev.UserID) {
		return
	}
	ctl, err := g.bars.HandleReaction(ctx, ev.MessageID, ev.UserID, ev.Emoji)
	switch {
	case errors.Is(err, bar.ErrNotAllowed):
		g.log.Debug("control refused", slog.String("user", ev.UserID), slog.String("control", string(ctl)))
	case err != nil:
		g.log.Warn("control failed", slog.String("channel", ev.ChannelID), slog.String("control", string(ctl)), slog.Any("err", err))
	case ctl != bar.ControlNone:
		g.log.Info("control applied", slog.String("channel", ev.ChannelID), slog.String("control", string(ctl)), slog.String("user", ev.UserID))
	}
}

// HandleReady accounts for the identify call made by the session itself.
func (g *Gateway) HandleReady() {
	if g.gate != nil {
		g.gate.Reserve(ratelimit.ActionIdentify, ratelimit.GlobalScope)
	}
	g.log.Info("gateway ready")
}

func (g *Gateway) runCommand(ctx context.Context, ev MessageEvent, cmd Command) {
	reply, err := g.execute(ctx, ev, cmd)
	switch {
	case errors.Is(err, bar.ErrNotAllowed):
		reply = "You can't do that here."
	case errors.Is(err, bar.ErrUnknownBar):
		reply = "This channel has no bar. Use " + g.prefix + CmdBar + " <text> to create one."
	case err != nil:
		g.log.Warn("command failed", slog.String("command", cmd.Name), slog.String("channel", ev.ChannelID), slog.Any("err", err))
		reply = "Something went wrong, try again in a moment."
	}
	if reply != "" {
		if _, err := g.client.SendMessage(ctx, ev.ChannelID, reply); err != nil {
			g.log.Debug("reply failed", slog.String("channel", ev.ChannelID), slog.Any("err", err))
		}
	}
}

// allowed lets admins do anything; others need to own the channel's bar
// (or the channel must have none yet, for bar).
func (g *Gateway) allowed(cmd Command, ev MessageEvent) error {
	if g.bars.IsAdmin(ev.AuthorID) {
		return nil
	}
	if cmd.AdminOnly() {
		return bar.ErrNotAllowed
	}
	b, ok := g.bars.Bar(ev.ChannelID)
	if !ok {
		if cmd.Name == CmdBar {
			return nil
		}
		return bar.ErrUnknownBar
	}
	if b.OwnerUserID != "" && b.OwnerUserID != ev.AuthorID {
		return bar.ErrNotAllowed
	}
	return nil
}

func (g *Gateway) execute(ctx context.Context, ev MessageEvent, cmd Command) (string, error) {
	if err := g.allowed(cmd, ev); err != nil {
		return "", err
	}
	manual := bar.DropOptions{MoveBar: true, MoveCheck: true, Manual: true}

	switch cmd.Name {
	case CmdBar:
		if cmd.Args == "" {
			return "Usage: " + g.prefix + CmdBar + " <text>", nil
		}
		_, err := g.bars.SetBar(ctx, ev.ChannelID, ev.GuildID, ev.AuthorID, cmd.Args)
		return "", err
	case CmdUnbar:
		return "", g.bars.RemoveBar(ctx, ev.ChannelID)
	case CmdDrop:
		return "", g.bars.RequestDrop(ctx, ev.ChannelID, manual)
	case CmdDropAll:
		return fmt.Sprintf("Dropped %d bars.", g.bars.DropAll(ctx, manual)), nil
	case CmdPersist:
		on, err := g.bars.TogglePersist(ctx, ev.ChannelID)
		if err != nil {
			return "", err
		}
		if on {
			return "Bar will follow the conversation.", nil
		}
		return "Bar will stay put.", nil
	case CmdIdle:
		n, err := g.bars.EnterIdle(ctx)
		return g.afterMode(ctx, n, err)
	case CmdSleep:
		n, err := g.bars.EnterSleep(ctx)
		return g.afterMode(ctx, n, err)
	case CmdAwake:
		n, err := g.bars.AwakeAll(ctx)
		return g.afterMode(ctx, n, err)
	case CmdGlobal:
		if cmd.Args == "" {
			return "Usage: " + g.prefix + CmdGlobal + " <text>", nil
		}
		n, err := g.bars.GlobalUpdate(ctx, cmd.Args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated %d bars.", n), nil
	}
	return "", nil
}

func (g *Gateway) afterMode(ctx context.Context, n int, err error) (string, error) {
	if err != nil {
		return "", err
	}
	mode := g.bars.Mode()
	g.SyncPresence(ctx, mode)
	return fmt.Sprintf("Mode %s: %d bars updated.", mode, n), nil
}

// SyncPresence mirrors mode into the bot status.
func (g *Gateway) SyncPresence(ctx context.Context, mode bar.Mode) {
	if g.presence == nil {
		return
	}
	if g.gate != nil {
		if err := g.gate.Await(ctx, ratelimit.ActionPresence, ratelimit.GlobalScope); err != nil {
			return
		}
	}
	if err := g.presence.SetPresence(PresenceStatus(mode)); err != nil {
		g.log.Debug("presence update failed", slog.Any("err", err))
	}
}

// PresenceStatus maps a mode onto a Discord status.
func PresenceStatus(mode bar.Mode) string {
	switch mode {
	case bar.ModeIdle:
		return "idle"
	case bar.ModeSleep:
		return "dnd"
	default:
		return "online"
	}
}
