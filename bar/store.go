package bar

import (
	"context"
	"time"
)

// Setting keys persisted through Store.SetSetting.
const (
	SettingSystemMode = "system_mode"
	SettingConsoleIDs = "console_message_ids"
)

// Location addresses a bar's messages across restarts.
type Location struct {
	ChannelID          string `json:"channel_id"`
	MessageID          string `json:"message_id"`
	CheckmarkMessageID string `json:"checkmark_message_id,omitempty"`
}

// HistoryEntry is one recorded bar text.
type HistoryEntry struct {
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists bars and deployment settings.
//
// GetBar returns nil, nil when the channel has no bar. GetSetting decodes the
// stored value into out and reports whether the key existed.
type Store interface {
	GetBar(ctx context.Context, channelID string) (*State, error)
	SaveBar(ctx context.Context, s *State) error
	DeleteBar(ctx context.Context, channelID string) error
	GetAllBars(ctx context.Context) (map[string]*State, error)

	GetWhitelist(ctx context.Context) ([]string, error)
	AddToWhitelist(ctx context.Context, channelID string) error
	RemoveFromWhitelist(ctx context.Context, channelID string) error

	GetMasterBar(ctx context.Context) (string, error)
	SetMasterBar(ctx context.Context, content string) error

	SaveChannelLocation(ctx context.Context, loc Location) error
	GetChannelLocation(ctx context.Context, channelID string) (*Location, error)

	GetSetting(ctx context.Context, key string, out any) (bool, error)
	SetSetting(ctx context.Context, key string, value any) error

	AppendHistory(ctx context.Context, channelID, content string) error
	GetHistory(ctx context.Context, channelID string, limit int) ([]HistoryEntry, error)
}
