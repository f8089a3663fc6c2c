package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
)

// Call is one recorded platform call.
type Call struct {
	Op        string
	ChannelID string
	MessageID string
	Content   string
}

// FakePlatform is an in-memory platform.Client. Messages live per channel in
// send order. Errors can be injected per message id or per channel.
type FakePlatform struct {
	mu       sync.Mutex
	next     int
	channels map[string][]*platform.Message
	calls    []Call

	// EditErr, FetchErr and DeleteErr are keyed by message id.
	EditErr   map[string]error
	FetchErr  map[string]error
	DeleteErr map[string]error
	// HistoryErr and SendErr are keyed by channel id.
	HistoryErr map[string]error
	SendErr    map[string]error

	// OnFetch runs before a fetch returns, outside the lock.
	OnFetch func(channelID, messageID string)
}

// NewFakePlatform returns an empty platform.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		next:       1000,
		channels:   make(map[string][]*platform.Message),
		EditErr:    make(map[string]error),
		FetchErr:   make(map[string]error),
		DeleteErr:  make(map[string]error),
		HistoryErr: make(map[string]error),
		SendErr:    make(map[string]error),
	}
}

// Post adds a message as if a user sent it and returns its id.
func (f *FakePlatform) Post(channelID, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(channelID, content, "user").ID
}

// Remove deletes a message behind the bot's back.
func (f *FakePlatform) Remove(channelID, messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remove(channelID, messageID)
}

// SetContent changes a message behind the bot's back.
func (f *FakePlatform) SetContent(channelID, messageID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m := f.find(channelID, messageID); m != nil {
		m.Content = content
	}
}

// Content returns the live text of a message and whether it exists.
func (f *FakePlatform) Content(channelID, messageID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.find(channelID, messageID)
	if m == nil {
		return "", false
	}
	return m.Content, true
}

// Messages returns the ids in a channel, oldest first.
func (f *FakePlatform) Messages(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.channels[channelID]))
	for _, m := range f.channels[channelID] {
		ids = append(ids, m.ID)
	}
	return ids
}

// Calls returns the recorded calls.
func (f *FakePlatform) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns the number of recorded calls for op.
func (f *FakePlatform) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (f *FakePlatform) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakePlatform) SendMessage(_ context.Context, channelID, content string) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "send", ChannelID: channelID, Content: content})
	if err := f.SendErr[channelID]; err != nil {
		return nil, err
	}
	m := f.add(channelID, content, "bot")
	cp := *m
	return &cp, nil
}

func (f *FakePlatform) EditMessage(_ context.Context, channelID, messageID, content string) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "edit", ChannelID: channelID, MessageID: messageID, Content: content})
	if err := f.EditErr[messageID]; err != nil {
		return nil, err
	}
	m := f.find(channelID, messageID)
	if m == nil {
		return nil, platform.NewError(platform.ClassNotFound, "edit", nil)
	}
	m.Content = content
	cp := *m
	return &cp, nil
}

func (f *FakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "delete", ChannelID: channelID, MessageID: messageID})
	if err := f.DeleteErr[messageID]; err != nil {
		return err
	}
	if f.find(channelID, messageID) == nil {
		return platform.NewError(platform.ClassNotFound, "delete", nil)
	}
	f.remove(channelID, messageID)
	return nil
}

func (f *FakePlatform) FetchMessage(_ context.Context, channelID, messageID string) (*platform.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: "fetch", ChannelID: channelID, MessageID: messageID})
	err := f.FetchErr[messageID]
	var cp *platform.Message
	if m := f.find(channelID, messageID); m != nil {
		c := *m
		cp = &c
	}
	hook := f.OnFetch
	f.mu.Unlock()

	if hook != nil {
		hook(channelID, messageID)
	}
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, platform.NewError(platform.ClassNotFound, "fetch", nil)
	}
	return cp, nil
}

func (f *FakePlatform) FetchRecentHistory(_ context.Context, channelID string, limit int) ([]*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "history", ChannelID: channelID})
	if err := f.HistoryErr[channelID]; err != nil {
		return nil, err
	}
	msgs := f.channels[channelID]
	out := make([]*platform.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *msgs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (f *FakePlatform) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "react", ChannelID: channelID, MessageID: messageID, Content: emoji})
	return nil
}

func (f *FakePlatform) add(channelID, content, author string) *platform.Message {
	f.next++
	m := &platform.Message{
		ID:        strconv.Itoa(f.next),
		ChannelID: channelID,
		AuthorID:  author,
		Content:   content,
	}
	f.channels[channelID] = append(f.channels[channelID], m)
	return m
}

func (f *FakePlatform) find(channelID, messageID string) *platform.Message {
	for _, m := range f.channels[channelID] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (f *FakePlatform) remove(channelID, messageID string) {
	msgs := f.channels[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			f.channels[channelID] = append(msgs[:i], msgs[i+1:]...)
			return
		}
	}
}

var _ platform.Client = (*FakePlatform)(nil)
