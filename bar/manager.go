package bar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
	"github.com/SeraphimOfTines/NyxOS-sub000/theme"
)

// DefaultDropDelay is the debounce window for RequestDrop.
const DefaultDropDelay = 3 * time.Second

// ConsoleTrigger asks the console to re-render. *Console satisfies it.
type ConsoleTrigger interface {
	Trigger()
}

// Manager owns the registry and performs every bar operation.
type Manager struct {
	store  Store
	client platform.Client
	theme  *theme.Theme
	clock  clockwork.Clock
	log    *slog.Logger

	reg      *Registry
	surfaces *Surfaces
	locks    *channelLocks
	drops    *Debouncer
	delay    time.Duration
	admins   map[string]bool
	console  ConsoleTrigger

	// modeMu keeps mode transitions single-flight.
	modeMu sync.Mutex
	mu     sync.RWMutex
	mode   Mode
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the clock used for debouncing.
func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithTheme sets the glyph catalog.
func WithTheme(t *theme.Theme) Option { return func(m *Manager) { m.theme = t } }

// WithDropDelay overrides the drop debounce window.
func WithDropDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithAdmins lists user ids allowed to control any bar.
func WithAdmins(ids ...string) Option {
	return func(m *Manager) {
		for _, id := range ids {
			if id != "" {
				m.admins[id] = true
			}
		}
	}
}

// NewManager builds a manager over store and client. Mutating calls on client
// are expected to be rate governed already (see platform.Governed).
func NewManager(store Store, client platform.Client, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		client:   client,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		reg:      NewRegistry(),
		surfaces: NewSurfaces(),
		locks:    newChannelLocks(),
		delay:    DefaultDropDelay,
		admins:   make(map[string]bool),
		mode:     ModeNormal,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.theme == nil {
		m.theme = theme.Default()
	}
	m.log = m.log.With(slog.String("component", "bar"))
	m.drops = NewDebouncer(m.clock, m.delay, m.runDrop)
	return m
}

// SetConsole attaches the console that is refreshed after bar changes.
func (m *Manager) SetConsole(c ConsoleTrigger) { m.console = c }

// Registry exposes the in-memory working set.
func (m *Manager) Registry() *Registry { return m.reg }

// Bar returns a copy of one channel's bar.
func (m *Manager) Bar(channelID string) (*State, bool) { return m.reg.Get(channelID) }

// Bars returns copies of every registered bar ordered by channel id.
func (m *Manager) Bars() []*State { return m.reg.Snapshot() }

// Surfaces exposes the message to channel index of interactive controls.
func (m *Manager) Surfaces() *Surfaces { return m.surfaces }

// Theme returns the glyph catalog in use.
func (m *Manager) Theme() *theme.Theme { return m.theme }

// Mode returns the current deployment mode.
func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Manager) setMode(ctx context.Context, mode Mode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	telemetry.SetSystemMode(string(mode), string(ModeNormal), string(ModeIdle), string(ModeSleep))
	if err := m.store.SetSetting(ctx, SettingSystemMode, string(mode)); err != nil {
		m.log.Warn("persist system mode failed", slog.String("mode", string(mode)), slog.Any("err", err))
	}
}

// Load restores the persisted mode and adopts every stored bar into the
// registry. Bars already registered are left alone.
func (m *Manager) Load(ctx context.Context) (int, error) {
	var mode string
	found, err := m.store.GetSetting(ctx, SettingSystemMode, &mode)
	if err != nil {
		m.log.Warn("load system mode failed", slog.Any("err", err))
	} else if found {
		if parsed, perr := ParseMode(mode); perr == nil {
			m.mu.Lock()
			m.mode = parsed
			m.mu.Unlock()
		}
	}
	bars, err := m.store.GetAllBars(ctx)
	if err != nil {
		return 0, fmt.Errorf("load bars: %w", err)
	}
	adopted := 0
	for _, s := range bars {
		if m.reg.PutIfAbsent(s) {
			adopted++
		}
	}
	telemetry.SetActiveBars(m.reg.Len())
	return adopted, nil
}

// IsAdmin reports whether userID may control every bar.
func (m *Manager) IsAdmin(userID string) bool { return m.admins[userID] }

// Close cancels pending debounced drops.
func (m *Manager) Close() { m.drops.Stop() }

func (m *Manager) triggerConsole() {
	if m.console != nil {
		m.console.Trigger()
	}
}

// save persists s and logs the failure; callers treat the registry as the
// working truth and retry on the next change.
func (m *Manager) save(ctx context.Context, s *State) bool {
	s.UpdatedAt = m.clock.Now().UTC()
	if err := m.store.SaveBar(ctx, s); err != nil {
		m.log.Error("save bar failed", slog.String("channel", s.ChannelID), slog.Any("err", err))
		return false
	}
	return true
}

// channelLocks serializes operations per channel. Each channel has a one-slot
// semaphore so waiting honours ctx.
type channelLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newChannelLocks() *channelLocks {
	return &channelLocks{slots: make(map[string]chan struct{})}
}

func (l *channelLocks) slot(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[id] = s
	}
	return s
}

// acquire blocks until the channel is free or ctx is done.
func (l *channelLocks) acquire(ctx context.Context, id string) (func(), error) {
	s := l.slot(id)
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
