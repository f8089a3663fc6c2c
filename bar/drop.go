package bar

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

// RequestDrop schedules a debounced drop for channelID. Repeated requests
// within the window collapse into one drop at the last deadline.
func (m *Manager) RequestDrop(ctx context.Context, channelID string, opts DropOptions) error {
	if !m.reg.Has(channelID) {
		return ErrUnknownBar
	}
	m.drops.Schedule(ctx, channelID, opts)
	return nil
}

// DropPending reports whether a debounced drop is waiting for channelID.
func (m *Manager) DropPending(channelID string) bool { return m.drops.Pending(channelID) }

func (m *Manager) runDrop(ctx context.Context, channelID string, opts DropOptions) {
	if err := m.Drop(ctx, channelID, opts); err != nil && !errors.Is(err, ErrUnknownBar) {
		m.log.Warn("debounced drop failed", slog.String("channel", channelID), slog.Any("err", err))
	}
}

// DropAll drops every bar immediately and returns the number that succeeded.
func (m *Manager) DropAll(ctx context.Context, opts DropOptions) int {
	n := 0
	for _, id := range m.reg.IDs() {
		m.drops.Cancel(id)
		if err := m.Drop(ctx, id, opts); err != nil {
			m.log.Warn("drop failed", slog.String("channel", id), slog.Any("err", err))
			continue
		}
		n++
	}
	return n
}

// Drop retires the bar to the bottom of its channel using as few platform
// calls as possible.
//
// When the bar is already the newest message it is edited in place, merging a
// separate marker into it (one edit and one delete). Otherwise the old bar is
// deleted and resent. HasNotification is cleared only for manual drops.
func (m *Manager) Drop(ctx context.Context, channelID string, opts DropOptions) error {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return err
	}
	defer release()

	ctx, span := telemetry.StartSpan(ctx, "bar.drop", telemetry.ChannelAttr(channelID))
	defer span.End()

	b, ok := m.reg.Get(channelID)
	if !ok {
		return ErrUnknownBar
	}

	if b.MessageID == "" {
		opts.MoveBar = true
	} else if opts.MoveBar {
		latest, err := platform.Latest(ctx, m.client, channelID)
		switch {
		case err != nil:
			m.log.Debug("drop: history fetch failed; assuming bar is not at bottom", slog.String("channel", channelID), slog.Any("err", err))
		case latest != nil && latest.ID == b.MessageID:
			opts.MoveBar = false
		}
	}
	merged := b.Merged()
	if merged && opts.MoveCheck {
		opts.MoveCheck = false
	}

	strategy := "move"
	gone := false
	if !opts.MoveBar {
		strategy = "edit"
		if !merged {
			strategy = "merge"
		}
		if _, err := m.client.EditMessage(ctx, channelID, b.MessageID, b.Render(m.theme, true)); err != nil {
			if !platform.IsNotFound(err) {
				telemetry.RecordError(span, err)
				return err
			}
			// The bar is gone; fall through to a resend.
			gone = true
			opts.MoveBar = true
			strategy = "move"
		} else {
			if !merged && b.CheckmarkMessageID != "" {
				m.deleteQuietly(ctx, channelID, b.CheckmarkMessageID)
				m.surfaces.Forget(b.CheckmarkMessageID)
			}
			b.CheckmarkMessageID = b.MessageID
		}
	}

	sent := ""
	if opts.MoveBar {
		// The old messages go only after the replacement is sent.
		sepMarker := !merged && b.CheckmarkMessageID != "" && b.CheckmarkMessageID != b.MessageID
		withMarker := merged || opts.MoveCheck
		msg, err := m.client.SendMessage(ctx, channelID, b.Render(m.theme, withMarker))
		if err != nil {
			telemetry.RecordError(span, err)
			if gone {
				m.forgetMessage(ctx, channelID, b.MessageID)
			}
			return err
		}
		if b.MessageID != "" {
			m.deleteQuietly(ctx, channelID, b.MessageID)
			m.surfaces.Forget(b.MessageID)
		}
		if sepMarker && opts.MoveCheck {
			m.deleteQuietly(ctx, channelID, b.CheckmarkMessageID)
			m.surfaces.Forget(b.CheckmarkMessageID)
		}
		sent = msg.ID
		b.MessageID = msg.ID
		switch {
		case withMarker:
			b.CheckmarkMessageID = msg.ID
		case !sepMarker:
			b.CheckmarkMessageID = ""
		}
	}

	next, ok := m.reg.Update(channelID, func(cur *State) {
		cur.MessageID = b.MessageID
		cur.CheckmarkMessageID = b.CheckmarkMessageID
		if opts.Manual {
			cur.HasNotification = false
		}
	})
	if !ok {
		// Removed while we were talking to the platform.
		if sent != "" {
			m.deleteQuietly(ctx, channelID, sent)
		}
		return nil
	}

	m.save(ctx, next)
	if err := m.store.SaveChannelLocation(ctx, Location{
		ChannelID:          channelID,
		MessageID:          next.MessageID,
		CheckmarkMessageID: next.CheckmarkMessageID,
	}); err != nil {
		m.log.Warn("save channel location failed", slog.String("channel", channelID), slog.Any("err", err))
	}
	if sent != "" {
		m.attachControls(ctx, channelID, sent)
	}
	telemetry.CountDrop(strategy)
	telemetry.SetSpanSuccess(span)
	m.triggerConsole()
	return nil
}

// forgetMessage clears a message id confirmed gone so reconciliation keeps
// the bar instead of pruning it; the next drop sends a fresh message.
func (m *Manager) forgetMessage(ctx context.Context, channelID, messageID string) {
	m.surfaces.Forget(messageID)
	next, ok := m.reg.Update(channelID, func(s *State) {
		if s.MessageID != messageID {
			return
		}
		if s.CheckmarkMessageID == messageID {
			s.CheckmarkMessageID = ""
		}
		s.MessageID = ""
	})
	if ok {
		m.save(ctx, next)
	}
}

func (m *Manager) deleteQuietly(ctx context.Context, channelID, messageID string) {
	if err := m.client.DeleteMessage(ctx, channelID, messageID); err != nil && !platform.IsNotFound(err) {
		m.log.Warn("delete message failed", slog.String("channel", channelID), slog.String("message", messageID), slog.Any("err", err))
	}
}

// attachControls registers messageID as a control surface and adds the
// control reactions.
func (m *Manager) attachControls(ctx context.Context, channelID, messageID string) {
	m.surfaces.Register(messageID, channelID)
	for _, emoji := range m.theme.Controls.All() {
		if err := m.client.AddReaction(ctx, channelID, messageID, emoji); err != nil {
			m.log.Debug("add control reaction failed", slog.String("channel", channelID), slog.Any("err", err))
			return
		}
	}
}
