package bar

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAllowed is returned when a user may not control a bar.
var ErrNotAllowed = errors.New("bar: not allowed")

// Surfaces maps bar message ids to their channel so reactions on a message
// can be routed to the bar they control.
type Surfaces struct {
	mu   sync.RWMutex
	byID map[string]string
}

// NewSurfaces returns an empty index.
func NewSurfaces() *Surfaces {
	return &Surfaces{byID: make(map[string]string)}
}

// Register binds messageID to channelID.
func (s *Surfaces) Register(messageID, channelID string) {
	if messageID == "" {
		return
	}
	s.mu.Lock()
	s.byID[messageID] = channelID
	s.mu.Unlock()
}

// Lookup returns the channel controlled by messageID.
func (s *Surfaces) Lookup(messageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.byID[messageID]
	return ch, ok
}

// Forget removes messageID.
func (s *Surfaces) Forget(messageID string) {
	s.mu.Lock()
	delete(s.byID, messageID)
	s.mu.Unlock()
}

// Len returns the number of registered messages.
func (s *Surfaces) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Control is an action triggered from a bar's reactions.
type Control string

const (
	ControlNone    Control = ""
	ControlDrop    Control = "drop"
	ControlDropAll Control = "drop_all"
	ControlPersist Control = "persist"
	ControlDelete  Control = "delete"
)

// ControlFor maps a reaction emoji to its control.
func (m *Manager) ControlFor(emoji string) Control {
	c := m.theme.Controls
	switch emoji {
	case "":
		return ControlNone
	case c.Drop:
		return ControlDrop
	case c.DropAll:
		return ControlDropAll
	case c.Persist:
		return ControlPersist
	case c.Delete:
		return ControlDelete
	default:
		return ControlNone
	}
}

// HandleReaction runs the control bound to emoji on the bar owning messageID.
// Only the bar owner and admins may use controls. Unknown messages and
// emoji are ignored.
func (m *Manager) HandleReaction(ctx context.Context, messageID, userID, emoji string) (Control, error) {
	channelID, ok := m.surfaces.Lookup(messageID)
	if !ok {
		return ControlNone, nil
	}
	ctl := m.ControlFor(emoji)
	if ctl == ControlNone {
		return ControlNone, nil
	}
	b, ok := m.reg.Get(channelID)
	if !ok {
		m.surfaces.Forget(messageID)
		return ControlNone, nil
	}
	if userID != b.OwnerUserID && !m.IsAdmin(userID) {
		return ctl, ErrNotAllowed
	}

	switch ctl {
	case ControlDrop:
		return ctl, m.RequestDrop(ctx, channelID, DropOptions{MoveBar: true, MoveCheck: true, Manual: true})
	case ControlDropAll:
		m.DropAll(ctx, DropOptions{MoveBar: true, MoveCheck: true, Manual: true})
		return ctl, nil
	case ControlPersist:
		_, err := m.TogglePersist(ctx, channelID)
		return ctl, err
	case ControlDelete:
		return ctl, m.RemoveBar(ctx, channelID)
	}
	return ctl, nil
}
