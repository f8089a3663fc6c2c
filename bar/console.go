package bar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
	"github.com/SeraphimOfTines/NyxOS-sub000/theme"
)

// Console defaults.
const (
	DefaultGroupSize       = 6
	DefaultMessageLimit    = 2000
	DefaultRefreshInterval = 5 * time.Minute
)

// Console renders every bar as a deep link into one or more summary messages
// in a dedicated channel and keeps those messages up to date.
type Console struct {
	channelID string
	reg       *Registry
	store     Store
	client    platform.Client
	theme     *theme.Theme
	clock     clockwork.Clock
	log       *slog.Logger

	groupSize int
	limit     int
	interval  time.Duration

	trigger chan struct{}

	// mu serializes refreshes and guards the fields below.
	mu     sync.Mutex
	loaded bool
	ids    []string
	last   map[string]string
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithGroupSize sets the number of links per line.
func WithGroupSize(n int) ConsoleOption {
	return func(c *Console) {
		if n > 0 {
			c.groupSize = n
		}
	}
}

// WithMessageLimit sets the per-message character ceiling.
func WithMessageLimit(n int) ConsoleOption {
	return func(c *Console) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithRefreshInterval sets the periodic refresh interval.
func WithRefreshInterval(d time.Duration) ConsoleOption {
	return func(c *Console) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithConsoleClock injects the clock driving the refresh ticker.
func WithConsoleClock(clock clockwork.Clock) ConsoleOption {
	return func(c *Console) { c.clock = clock }
}

// NewConsole returns a console posting to channelID. An empty channelID
// yields a disabled console whose methods do nothing.
func NewConsole(channelID string, m *Manager, opts ...ConsoleOption) *Console {
	c := &Console{
		channelID: channelID,
		reg:       m.reg,
		store:     m.store,
		client:    m.client,
		theme:     m.theme,
		clock:     m.clock,
		log:       m.log.With(slog.String("subsystem", "console")),
		groupSize: DefaultGroupSize,
		limit:     DefaultMessageLimit,
		interval:  DefaultRefreshInterval,
		trigger:   make(chan struct{}, 1),
		last:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a console channel is configured.
func (c *Console) Enabled() bool { return c.channelID != "" }

// Trigger requests an asynchronous refresh. Requests made while one is
// pending coalesce.
func (c *Console) Trigger() {
	if !c.Enabled() {
		return
	}
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes on every trigger and on the periodic interval until ctx ends.
func (c *Console) Run(ctx context.Context) {
	if !c.Enabled() {
		c.log.Info("console channel not configured; console disabled")
		return
	}
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.trigger:
		case <-ticker.Chan():
		}
		if _, err := c.Refresh(ctx); err != nil {
			c.log.Warn("console refresh failed", slog.Any("err", err))
		}
	}
}

// Tracked returns the ids of the console messages in order.
func (c *Console) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

// Refresh renders the console and reconciles it with the tracked messages.
// It returns the number of segments now live.
//
// An edit that fails because the message is gone is replaced by a new message
// at the same position. Any other edit failure keeps the tracked message so a
// transient error never produces a duplicate. Surplus tracked messages are
// left alone.
func (c *Console) Refresh(ctx context.Context) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "console.refresh", telemetry.ChannelAttr(c.channelID))
	defer span.End()
	start := c.clock.Now()
	defer func() {
		if telemetry.ConsoleDuration != nil {
			telemetry.ConsoleDuration.Observe(c.clock.Since(start).Seconds())
		}
	}()

	if !c.loaded {
		var ids []string
		if _, err := c.store.GetSetting(ctx, SettingConsoleIDs, &ids); err != nil {
			telemetry.RecordError(span, err)
			return 0, fmt.Errorf("load console ids: %w", err)
		}
		c.ids = ids
		c.loaded = true
	}

	segments, err := c.Render(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	changed := false
	live := 0
	for i, seg := range segments {
		if i >= len(c.ids) {
			msg, err := c.client.SendMessage(ctx, c.channelID, seg)
			if err != nil {
				c.log.Warn("console send failed", slog.Int("segment", i), slog.Any("err", err))
				break
			}
			c.ids = append(c.ids, msg.ID)
			c.last[msg.ID] = seg
			changed = true
			live++
			continue
		}
		id := c.ids[i]
		if c.last[id] == seg {
			live++
			continue
		}
		if _, err := c.client.EditMessage(ctx, c.channelID, id, seg); err != nil {
			class := platform.Classify(err)
			telemetry.CountConsoleEditError(class.String())
			if class != platform.ClassNotFound {
				c.log.Warn("console edit failed; keeping message", slog.String("message", id), slog.String("class", class.String()), slog.Any("err", err))
				continue
			}
			msg, err := c.client.SendMessage(ctx, c.channelID, seg)
			if err != nil {
				c.log.Warn("console replacement send failed", slog.Int("segment", i), slog.Any("err", err))
				continue
			}
			delete(c.last, id)
			c.ids[i] = msg.ID
			c.last[msg.ID] = seg
			changed = true
			live++
			continue
		}
		c.last[id] = seg
		live++
	}

	if changed {
		if err := c.store.SetSetting(ctx, SettingConsoleIDs, c.ids); err != nil {
			c.log.Warn("persist console ids failed", slog.Any("err", err))
		}
	}
	if telemetry.ConsoleRefreshes != nil {
		telemetry.ConsoleRefreshes.Inc()
	}
	telemetry.SetConsoleSegments(len(segments))
	telemetry.SetSpanSuccess(span)
	return live, nil
}

// Render builds the console segments from the current registry.
func (c *Console) Render(ctx context.Context) ([]string, error) {
	master, err := c.store.GetMasterBar(ctx)
	if err != nil {
		c.log.Debug("master bar unavailable", slog.Any("err", err))
		master = ""
	}
	whitelist, err := c.store.GetWhitelist(ctx)
	if err != nil {
		c.log.Debug("whitelist unavailable; using registry order", slog.Any("err", err))
		whitelist = nil
	}

	header := c.theme.ConsoleHeader
	if master != "" {
		header += "\n" + master
	}
	tokens := make([]string, 0, c.reg.Len())
	for _, b := range orderBars(c.reg.Snapshot(), whitelist) {
		tokens = append(tokens, c.Token(b))
	}
	return Segments(header, Lines(tokens, c.groupSize), c.limit), nil
}

// Token is the console entry for one bar.
func (c *Console) Token(b *State) string {
	prefix := b.CurrentPrefix
	if prefix == "" {
		prefix = c.theme.Idle
	}
	if b.HasNotification {
		prefix += c.theme.Notification
	}
	return prefix + " " + MessageLink(b.GuildID, b.ChannelID, b.MessageID)
}

// MessageLink is the deep link to a message.
func MessageLink(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// Lines groups tokens size per line.
func Lines(tokens []string, size int) []string {
	if size <= 0 {
		size = DefaultGroupSize
	}
	lines := make([]string, 0, (len(tokens)+size-1)/size)
	for i := 0; i < len(tokens); i += size {
		end := min(i+size, len(tokens))
		lines = append(lines, strings.Join(tokens[i:end], "  "))
	}
	return lines
}

// Segments packs header and lines into messages of at most limit characters.
// A new message starts whenever the next line would cross the limit.
func Segments(header string, lines []string, limit int) []string {
	var out []string
	cur := header
	for _, line := range lines {
		candidate := line
		if cur != "" {
			candidate = cur + "\n" + line
		}
		if cur != "" && utf8.RuneCountInString(candidate) > limit {
			out = append(out, cur)
			cur = line
			continue
		}
		cur = candidate
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// orderBars lists whitelisted channels first, in whitelist order, then the
// rest by channel id.
func orderBars(bars []*State, whitelist []string) []*State {
	byID := make(map[string]*State, len(bars))
	for _, b := range bars {
		byID[b.ChannelID] = b
	}
	out := make([]*State, 0, len(bars))
	for _, id := range whitelist {
		if b, ok := byID[id]; ok {
			out = append(out, b)
			delete(byID, id)
		}
	}
	for _, b := range bars {
		if _, ok := byID[b.ChannelID]; ok {
			out = append(out, b)
		}
	}
	return out
}
