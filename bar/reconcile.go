package bar

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	RunID           string        `json:"run_id"`
	Checked         int           `json:"checked"`
	Adopted         int           `json:"adopted"`
	Updated         int           `json:"updated"`
	Pruned          int           `json:"pruned"`
	Preserved       int           `json:"preserved"`
	WhitelistPruned int           `json:"whitelist_pruned"`
	Duration        time.Duration `json:"duration"`
}

// Reconcile aligns the store, the registry and the live messages.
//
// Only a NotFound fetch prunes a bar. Forbidden and transient failures leave
// the bar as it is and keep its controls registered. When the live text
// differs from the stored content the live text wins. Running it twice with
// no platform changes writes nothing the second time.
//
// A store load failure aborts the run before anything is touched. Whitelist
// entries are removed one at a time, and only when the platform reports the
// channel gone.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileReport, error) {
	rep := ReconcileReport{RunID: uuid.NewString()}
	ctx = telemetry.WithCorrelation(ctx, rep.RunID)
	ctx, span := telemetry.StartSpan(ctx, "bar.reconcile")
	defer span.End()
	log := m.log.With(slog.String("corr", rep.RunID))
	start := m.clock.Now()

	stored, err := m.store.GetAllBars(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return rep, fmt.Errorf("reconcile: load bars: %w", err)
	}
	ids := make([]string, 0, len(stored))
	for id, s := range stored {
		if m.reg.PutIfAbsent(s) {
			rep.Adopted++
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		outcome, err := m.reconcileOne(ctx, id)
		if err != nil {
			log.Warn("reconcile bar failed", slog.String("channel", id), slog.Any("err", err))
			continue
		}
		telemetry.CountReconcile(outcome)
		switch outcome {
		case "pruned":
			rep.Pruned++
		case "updated":
			rep.Updated++
		case "preserved":
			rep.Preserved++
		}
		if outcome != "vanished" {
			rep.Checked++
		}
	}

	rep.WhitelistPruned = m.pruneWhitelist(ctx, log)
	rep.Duration = m.clock.Since(start)
	if telemetry.ReconcileDuration != nil {
		telemetry.ReconcileDuration.Observe(rep.Duration.Seconds())
	}
	telemetry.SetActiveBars(m.reg.Len())
	telemetry.SetSpanSuccess(span)
	m.triggerConsole()
	log.Info("reconcile complete",
		slog.Int("checked", rep.Checked),
		slog.Int("adopted", rep.Adopted),
		slog.Int("updated", rep.Updated),
		slog.Int("pruned", rep.Pruned),
		slog.Int("preserved", rep.Preserved),
		slog.Int("whitelist_pruned", rep.WhitelistPruned))
	return rep, nil
}

// reconcileOne returns one of pruned, updated, unchanged, preserved or
// vanished.
func (m *Manager) reconcileOne(ctx context.Context, channelID string) (string, error) {
	release, err := m.locks.acquire(ctx, channelID)
	if err != nil {
		return "", err
	}
	defer release()

	cur, ok := m.reg.Get(channelID)
	if !ok {
		return "vanished", nil
	}
	if cur.MessageID == "" {
		return "preserved", nil
	}

	res := platform.Fetch(ctx, m.client, channelID, cur.MessageID)
	switch res.Class {
	case platform.ClassNotFound:
		if err := m.store.DeleteBar(ctx, channelID); err != nil {
			return "", fmt.Errorf("delete bar: %w", err)
		}
		m.reg.Delete(channelID)
		m.drops.Cancel(channelID)
		m.surfaces.Forget(cur.MessageID)
		return "pruned", nil
	case platform.ClassOK:
	default:
		m.surfaces.Register(cur.MessageID, channelID)
		m.log.Debug("bar unreachable; keeping", slog.String("channel", channelID), slog.String("class", res.Class.String()))
		return "preserved", nil
	}

	m.surfaces.Register(cur.MessageID, channelID)
	live := StripMarker(m.theme, Sanitize(res.Message.Content))
	if live == cur.Display(m.theme) {
		return "unchanged", nil
	}
	prefix, _ := m.theme.SplitPrefix(live)
	next, ok := m.reg.Update(channelID, func(s *State) {
		s.Content = live
		s.CurrentPrefix = prefix
	})
	if !ok {
		return "vanished", nil
	}
	m.save(ctx, next)
	return "updated", nil
}

func (m *Manager) pruneWhitelist(ctx context.Context, log *slog.Logger) int {
	wl, err := m.store.GetWhitelist(ctx)
	if err != nil {
		log.Warn("load whitelist failed; skipping cleanup", slog.Any("err", err))
		return 0
	}
	pruned := 0
	for _, ch := range wl {
		if m.reg.Has(ch) {
			continue
		}
		_, err := m.client.FetchRecentHistory(ctx, ch, 1)
		if !platform.IsNotFound(err) {
			continue
		}
		if err := m.store.RemoveFromWhitelist(ctx, ch); err != nil {
			log.Warn("remove whitelist entry failed", slog.String("channel", ch), slog.Any("err", err))
			continue
		}
		pruned++
	}
	return pruned
}

// StartReconciler runs Reconcile every interval with jitter until ctx ends.
func (m *Manager) StartReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	go func() {
		for {
			// ±20% of interval.
			var jitter time.Duration
			if jitterRange := int64(interval / 5); jitterRange > 0 {
				//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
				jitter = time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			}
			select {
			case <-ctx.Done():
				return
			case <-m.clock.After(interval + jitter):
			}
			if _, err := m.Reconcile(ctx); err != nil {
				m.log.Warn("periodic reconcile failed", slog.Any("err", err))
			}
		}
	}()
}
