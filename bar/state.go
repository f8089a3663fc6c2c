// Package bar keeps per-channel status bars consistent across the persisted
// store, the in-memory registry and the live platform messages. It owns the
// mode controller, the drop/merge optimizer, the console aggregator and the
// reconciliation engine.
package bar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SeraphimOfTines/NyxOS-sub000/theme"
)

// ErrUnknownBar is returned when an operation names a channel without a bar.
var ErrUnknownBar = errors.New("bar: unknown channel")

// Mode is the deployment-wide display mode.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeIdle   Mode = "idle"
	ModeSleep  Mode = "sleep"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNormal, ModeIdle, ModeSleep:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Snapshot is the observable state of a bar captured when entering sleep.
type Snapshot struct {
	Content         string `json:"content"`
	Prefix          string `json:"prefix"`
	HasNotification bool   `json:"has_notification"`
	Persisting      bool   `json:"persisting"`
	OwnerUserID     string `json:"owner_user_id,omitempty"`
}

// State is one channel's bar.
type State struct {
	ChannelID          string    `json:"channel_id"`
	GuildID            string    `json:"guild_id"`
	MessageID          string    `json:"message_id"`
	CheckmarkMessageID string    `json:"checkmark_message_id,omitempty"`
	Content            string    `json:"content"`
	CurrentPrefix      string    `json:"current_prefix"`
	OwnerUserID        string    `json:"owner_user_id"`
	Persisting         bool      `json:"persisting"`
	IsSleeping         bool      `json:"is_sleeping"`
	HasNotification    bool      `json:"has_notification"`
	PreviousState      *Snapshot `json:"previous_state,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Merged reports whether the caught-up marker lives in the bar message itself.
func (s *State) Merged() bool {
	return s.MessageID != "" && s.CheckmarkMessageID == s.MessageID
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	if s.PreviousState != nil {
		snap := *s.PreviousState
		cp.PreviousState = &snap
	}
	return &cp
}

func (s *State) snapshot() *Snapshot {
	return &Snapshot{
		Content:         s.Content,
		Prefix:          s.CurrentPrefix,
		HasNotification: s.HasNotification,
		Persisting:      s.Persisting,
		OwnerUserID:     s.OwnerUserID,
	}
}

// Display is the bar text without the marker: Content with CurrentPrefix
// shown in place of its own prefix.
func (s *State) Display(th *theme.Theme) string {
	if s.CurrentPrefix == "" {
		return s.Content
	}
	if own, _ := th.SplitPrefix(s.Content); own == s.CurrentPrefix {
		return s.Content
	}
	return th.WithPrefix(s.Content, s.CurrentPrefix)
}

// Render is the full message text of the bar.
func (s *State) Render(th *theme.Theme, withMarker bool) string {
	text := s.Display(th)
	if withMarker {
		if text == "" {
			return th.Checkmark
		}
		return text + " " + th.Checkmark
	}
	return text
}

// Sanitize collapses line breaks so bar content is always a single line.
func Sanitize(content string) string {
	content = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(content)
	return strings.TrimSpace(content)
}

// StripMarker removes a trailing caught-up marker from live message text.
func StripMarker(th *theme.Theme, text string) string {
	text = strings.TrimRight(text, " ")
	if th.Checkmark != "" && strings.HasSuffix(text, th.Checkmark) {
		text = strings.TrimRight(strings.TrimSuffix(text, th.Checkmark), " ")
	}
	return text
}
