package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
)

// MemStore is an in-memory bar.Store that counts writes. Set Err* fields to
// make the matching calls fail.
type MemStore struct {
	mu        sync.Mutex
	bars      map[string]*bar.State
	whitelist []string
	master    string
	locations map[string]bar.Location
	settings  map[string][]byte
	history   map[string][]bar.HistoryEntry

	Saves      int
	Deletes    int
	SettingsIO int

	ErrGetAll    error
	ErrSave      error
	ErrWhitelist error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		bars:      make(map[string]*bar.State),
		locations: make(map[string]bar.Location),
		settings:  make(map[string][]byte),
		history:   make(map[string][]bar.HistoryEntry),
	}
}

// Seed stores bars without counting writes.
func (s *MemStore) Seed(bars ...*bar.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		s.bars[b.ChannelID] = b.Clone()
	}
}

// Writes returns the number of bar saves and deletes.
func (s *MemStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Saves + s.Deletes
}

// Bar returns the stored bar or nil.
func (s *MemStore) Bar(channelID string) *bar.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bars[channelID].Clone()
}

func (s *MemStore) GetBar(_ context.Context, channelID string) (*bar.State, error) {
	return s.Bar(channelID), nil
}

func (s *MemStore) SaveBar(_ context.Context, b *bar.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrSave != nil {
		return s.ErrSave
	}
	s.Saves++
	s.bars[b.ChannelID] = b.Clone()
	return nil
}

func (s *MemStore) DeleteBar(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	delete(s.bars, channelID)
	return nil
}

func (s *MemStore) GetAllBars(context.Context) (map[string]*bar.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrGetAll != nil {
		return nil, s.ErrGetAll
	}
	out := make(map[string]*bar.State, len(s.bars))
	for id, b := range s.bars {
		out[id] = b.Clone()
	}
	return out, nil
}

func (s *MemStore) GetWhitelist(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrWhitelist != nil {
		return nil, s.ErrWhitelist
	}
	return append([]string(nil), s.whitelist...), nil
}

func (s *MemStore) AddToWhitelist(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.whitelist {
		if id == channelID {
			return nil
		}
	}
	s.whitelist = append(s.whitelist, channelID)
	return nil
}

func (s *MemStore) RemoveFromWhitelist(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.whitelist[:0]
	for _, id := range s.whitelist {
		if id != channelID {
			out = append(out, id)
		}
	}
	s.whitelist = out
	return nil
}

func (s *MemStore) GetMasterBar(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master, nil
}

func (s *MemStore) SetMasterBar(_ context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master = content
	return nil
}

func (s *MemStore) SaveChannelLocation(_ context.Context, loc bar.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ChannelID] = loc
	return nil
}

func (s *MemStore) GetChannelLocation(_ context.Context, channelID string) (*bar.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[channelID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (s *MemStore) GetSetting(_ context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.settings[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (s *MemStore) SetSetting(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SettingsIO++
	s.settings[key] = raw
	return nil
}

func (s *MemStore) AppendHistory(_ context.Context, channelID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[channelID]
	if len(h) > 0 && h[0].Content == content {
		return nil
	}
	entry := bar.HistoryEntry{ChannelID: channelID, Content: content, CreatedAt: time.Now().UTC()}
	s.history[channelID] = append([]bar.HistoryEntry{entry}, h...)
	return nil
}

func (s *MemStore) GetHistory(_ context.Context, channelID string, limit int) ([]bar.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[channelID]
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return append([]bar.HistoryEntry(nil), h...), nil
}

var _ bar.Store = (*MemStore)(nil)
