package bar

import (
	"sort"
	"sync"
)

// Registry is the in-memory working set of bars. Accessors copy in and out
// so callers never hold a pointer into the map across a suspension point.
type Registry struct {
	mu   sync.RWMutex
	bars map[string]*State
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bars: make(map[string]*State)}
}

// Get returns a copy of the bar for channelID.
func (r *Registry) Get(channelID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.bars[channelID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Has reports whether channelID has a bar.
func (r *Registry) Has(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bars[channelID]
	return ok
}

// Put stores a copy of s, replacing any existing entry.
func (r *Registry) Put(s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars[s.ChannelID] = s.Clone()
}

// PutIfAbsent stores a copy of s unless the channel already has a bar.
func (r *Registry) PutIfAbsent(s *State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bars[s.ChannelID]; ok {
		return false
	}
	r.bars[s.ChannelID] = s.Clone()
	return true
}

// Delete removes channelID and reports whether it was present.
func (r *Registry) Delete(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bars[channelID]
	delete(r.bars, channelID)
	return ok
}

// Update applies fn to the stored bar and returns the result. It returns
// false without calling fn when the channel has vanished.
func (r *Registry) Update(channelID string, fn func(*State)) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bars[channelID]
	if !ok {
		return nil, false
	}
	fn(s)
	return s.Clone(), true
}

// Snapshot returns copies of every bar ordered by channel id.
func (r *Registry) Snapshot() []*State {
	r.mu.RLock()
	out := make([]*State, 0, len(r.bars))
	for _, s := range r.bars {
		out = append(out, s.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// IDs returns the channel ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.bars))
	for id := range r.bars {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of bars.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bars)
}
