package bar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

// modePrefix is the prefix a freshly written bar shows under the current mode.
func (m *Manager) modePrefix(own string) string {
	switch m.Mode() {
	case ModeIdle:
		return m.theme.Idle
	case ModeSleep:
		return m.theme.Sleep
	default:
		return own
	}
}

// normalize gives text a prefix, defaulting to the normal glyph.
func (m *Manager) normalize(text string) (content, prefix string) {
	content = Sanitize(text)
	prefix, _ = m.theme.SplitPrefix(content)
	if prefix == "" {
		prefix = m.theme.Normal
		content = m.theme.WithPrefix(content, prefix)
	}
	return content, prefix
}

// SetBar creates the bar for channelID or updates its text in place. New bars
// are sent with the marker merged and added to the whitelist.
func (m *Manager) SetBar(ctx context.Context, channelID, guildID, ownerID, text string) (*State, error) {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return nil, err
	}
	defer release()

	content, own := m.normalize(text)
	if cur, ok := m.reg.Get(channelID); ok && cur.MessageID != "" {
		return m.rewrite(ctx, cur, content, own)
	}

	b := &State{
		ChannelID:     channelID,
		GuildID:       guildID,
		Content:       content,
		CurrentPrefix: m.modePrefix(own),
		OwnerUserID:   ownerID,
	}
	msg, err := m.client.SendMessage(ctx, channelID, b.Render(m.theme, true))
	if err != nil {
		return nil, fmt.Errorf("send bar: %w", err)
	}
	b.MessageID = msg.ID
	b.CheckmarkMessageID = msg.ID
	m.reg.Put(b)
	m.save(ctx, b)
	if err := m.store.AddToWhitelist(ctx, channelID); err != nil {
		m.log.Warn("whitelist add failed", slog.String("channel", channelID), slog.Any("err", err))
	}
	if err := m.store.SaveChannelLocation(ctx, Location{ChannelID: channelID, MessageID: msg.ID, CheckmarkMessageID: msg.ID}); err != nil {
		m.log.Warn("save channel location failed", slog.String("channel", channelID), slog.Any("err", err))
	}
	m.recordHistory(ctx, channelID, content)
	m.attachControls(ctx, channelID, msg.ID)
	telemetry.SetActiveBars(m.reg.Len())
	m.triggerConsole()
	return b.Clone(), nil
}

// UpdateBar changes the text of an existing bar in place.
func (m *Manager) UpdateBar(ctx context.Context, channelID, text string) (*State, error) {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, ok := m.reg.Get(channelID)
	if !ok {
		return nil, ErrUnknownBar
	}
	content, own := m.normalize(text)
	return m.rewrite(ctx, cur, content, own)
}

// rewrite must be called with the channel lock held.
func (m *Manager) rewrite(ctx context.Context, cur *State, content, own string) (*State, error) {
	draft := cur.Clone()
	draft.Content = content
	draft.CurrentPrefix = m.modePrefix(own)
	if draft.MessageID != "" {
		if _, err := m.client.EditMessage(ctx, draft.ChannelID, draft.MessageID, draft.Render(m.theme, draft.Merged())); err != nil {
			return nil, fmt.Errorf("edit bar: %w", err)
		}
	}
	next, ok := m.reg.Update(cur.ChannelID, func(s *State) {
		s.Content = draft.Content
		s.CurrentPrefix = draft.CurrentPrefix
		// A sleep snapshot is what awake restores; keep it current.
		if s.PreviousState != nil {
			s.PreviousState.Content = draft.Content
			s.PreviousState.Prefix = own
		}
	})
	if !ok {
		return nil, ErrUnknownBar
	}
	m.save(ctx, next)
	m.recordHistory(ctx, next.ChannelID, content)
	m.triggerConsole()
	return next, nil
}

// RemoveBar deletes the bar and its marker, forgets the channel and drops it
// from the whitelist.
func (m *Manager) RemoveBar(ctx context.Context, channelID string) error {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return err
	}
	defer release()

	cur, ok := m.reg.Get(channelID)
	if !ok {
		return ErrUnknownBar
	}
	m.drops.Cancel(channelID)
	if cur.MessageID != "" {
		m.deleteQuietly(ctx, channelID, cur.MessageID)
		m.surfaces.Forget(cur.MessageID)
	}
	if cur.CheckmarkMessageID != "" && cur.CheckmarkMessageID != cur.MessageID {
		m.deleteQuietly(ctx, channelID, cur.CheckmarkMessageID)
		m.surfaces.Forget(cur.CheckmarkMessageID)
	}
	if err := m.store.DeleteBar(ctx, channelID); err != nil {
		return fmt.Errorf("delete bar: %w", err)
	}
	if err := m.store.RemoveFromWhitelist(ctx, channelID); err != nil {
		m.log.Warn("whitelist remove failed", slog.String("channel", channelID), slog.Any("err", err))
	}
	m.reg.Delete(channelID)
	telemetry.SetActiveBars(m.reg.Len())
	m.triggerConsole()
	return nil
}

// TogglePersist flips whether the bar follows channel activity and returns
// the new value.
func (m *Manager) TogglePersist(ctx context.Context, channelID string) (bool, error) {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return false, err
	}
	defer release()

	next, ok := m.reg.Update(channelID, func(s *State) { s.Persisting = !s.Persisting })
	if !ok {
		return false, ErrUnknownBar
	}
	m.save(ctx, next)
	return next.Persisting, nil
}

// GlobalUpdate stores text as the master bar and writes it into every bar,
// keeping each bar's current prefix. It returns the number of bars edited.
func (m *Manager) GlobalUpdate(ctx context.Context, text string) (int, error) {
	text = Sanitize(text)
	if err := m.store.SetMasterBar(ctx, text); err != nil {
		return 0, fmt.Errorf("set master bar: %w", err)
	}
	_, body := m.theme.SplitPrefix(text)
	n := 0
	for _, id := range m.reg.IDs() {
		ok, err := m.propagateOne(ctx, id, body)
		if err != nil {
			m.log.Warn("global update failed for bar", slog.String("channel", id), slog.Any("err", err))
			continue
		}
		if ok {
			n++
		}
	}
	m.triggerConsole()
	return n, nil
}

func (m *Manager) propagateOne(ctx context.Context, channelID, body string) (bool, error) {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return false, err
	}
	defer release()

	cur, ok := m.reg.Get(channelID)
	if !ok {
		return false, nil
	}
	own, _ := m.theme.SplitPrefix(cur.Content)
	if own == "" {
		own = m.theme.Normal
	}
	draft := cur.Clone()
	draft.Content = m.theme.WithPrefix(body, own)
	if draft.MessageID != "" {
		if _, err := m.client.EditMessage(ctx, channelID, draft.MessageID, draft.Render(m.theme, draft.Merged())); err != nil {
			return false, err
		}
	}
	next, ok := m.reg.Update(channelID, func(s *State) {
		s.Content = draft.Content
		if s.PreviousState != nil {
			s.PreviousState.Content = draft.Content
		}
	})
	if !ok {
		return false, nil
	}
	m.save(ctx, next)
	m.recordHistory(ctx, channelID, next.Content)
	return true, nil
}

// MarkActivity records unseen activity in channelID. The first message after
// a manual drop sets the notification flag; persisting bars also request an
// automatic drop so they stay at the bottom, except while asleep.
func (m *Manager) MarkActivity(ctx context.Context, channelID string) error {
	cur, ok := m.reg.Get(channelID)
	if !ok {
		return ErrUnknownBar
	}
	if !cur.HasNotification {
		release, err := m.locks.acquire(ctx, channelID)
		if err != nil {
			return err
		}
		next, ok := m.reg.Update(channelID, func(s *State) { s.HasNotification = true })
		if ok {
			m.save(ctx, next)
			m.triggerConsole()
		}
		release()
	}
	if cur.Persisting && m.Mode() != ModeSleep {
		return m.RequestDrop(ctx, channelID, DropOptions{MoveBar: true})
	}
	return nil
}

// History returns recorded texts for channelID, newest first.
func (m *Manager) History(ctx context.Context, channelID string, limit int) ([]HistoryEntry, error) {
	return m.store.GetHistory(ctx, channelID, limit)
}

func (m *Manager) recordHistory(ctx context.Context, channelID, content string) {
	if err := m.store.AppendHistory(ctx, channelID, content); err != nil {
		m.log.Debug("append history failed", slog.String("channel", channelID), slog.Any("err", err))
	}
}
