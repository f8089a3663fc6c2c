package bar

import (
	"context"
	"fmt"
	"log/slog"
)

// EnterIdle shows the idle prefix on every bar. Content is untouched and no
// snapshot is taken, so a later awake simply shows the bar's own prefix again.
// Entering idle while already idle re-renders.
func (m *Manager) EnterIdle(ctx context.Context) (int, error) {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()

	n := m.transitionAll(ctx, func(s *State) {
		s.CurrentPrefix = m.theme.Idle
		// Idle is not sleep; a snapshot taken by an earlier sleep stays for awake.
		s.IsSleeping = false
	})
	m.setMode(ctx, ModeIdle)
	m.triggerConsole()
	return n, nil
}

// EnterSleep puts every bar to sleep. From normal each bar is snapshotted
// first; from idle there is nothing worth keeping. Only a bar holding a
// snapshot is marked sleeping and has Persisting parked in it; the others just
// show the sleep prefix. Calling it while asleep toggles back to normal.
func (m *Manager) EnterSleep(ctx context.Context) (int, error) {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()

	prev := m.Mode()
	if prev == ModeSleep {
		return m.restoreAll(ctx), nil
	}
	n := m.transitionAll(ctx, func(s *State) {
		if prev == ModeNormal {
			s.PreviousState = s.snapshot()
		}
		if s.PreviousState != nil {
			s.IsSleeping = true
			s.Persisting = false
		}
		s.CurrentPrefix = m.theme.Sleep
	})
	m.setMode(ctx, ModeSleep)
	m.triggerConsole()
	return n, nil
}

// AwakeAll returns every bar to normal from any mode.
func (m *Manager) AwakeAll(ctx context.Context) (int, error) {
	m.modeMu.Lock()
	defer m.modeMu.Unlock()
	return m.restoreAll(ctx), nil
}

// SetMode moves to mode without toggling; asking for sleep while asleep is a
// no-op.
func (m *Manager) SetMode(ctx context.Context, mode Mode) (int, error) {
	switch mode {
	case ModeNormal:
		return m.AwakeAll(ctx)
	case ModeIdle:
		return m.EnterIdle(ctx)
	case ModeSleep:
		if m.Mode() == ModeSleep {
			return 0, nil
		}
		return m.EnterSleep(ctx)
	default:
		return 0, fmt.Errorf("unknown mode %q", mode)
	}
}

// restoreAll must be called with modeMu held.
func (m *Manager) restoreAll(ctx context.Context) int {
	n := m.transitionAll(ctx, func(s *State) {
		if snap := s.PreviousState; snap != nil {
			s.Content = snap.Content
			s.CurrentPrefix = snap.Prefix
			s.Persisting = snap.Persisting
			s.HasNotification = s.HasNotification || snap.HasNotification
			if snap.OwnerUserID != "" {
				s.OwnerUserID = snap.OwnerUserID
			}
		} else {
			own, _ := m.theme.SplitPrefix(s.Content)
			if own == "" {
				own = m.theme.Normal
			}
			s.CurrentPrefix = own
		}
		s.PreviousState = nil
		s.IsSleeping = false
	})
	m.setMode(ctx, ModeNormal)
	m.triggerConsole()
	return n
}

// transitionAll applies fn to every bar, edits its message and saves it. A
// failing bar is logged and skipped. The count is the number of successful
// edits.
func (m *Manager) transitionAll(ctx context.Context, fn func(*State)) int {
	n := 0
	for _, id := range m.reg.IDs() {
		ok, err := m.transitionOne(ctx, id, fn)
		if err != nil {
			m.log.Warn("mode transition failed for bar", slog.String("channel", id), slog.Any("err", err))
			continue
		}
		if ok {
			n++
		}
	}
	return n
}

func (m *Manager) transitionOne(ctx context.Context, channelID string, fn func(*State)) (bool, error) {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return false, err
	}
	defer release()

	next, ok := m.reg.Update(channelID, fn)
	if !ok {
		return false, nil
	}
	m.save(ctx, next)
	if next.MessageID == "" {
		return false, nil
	}
	if _, err := m.client.EditMessage(ctx, channelID, next.MessageID, next.Render(m.theme, next.Merged())); err != nil {
		return false, err
	}
	return true, nil
}
