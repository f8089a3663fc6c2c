package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
)

const settingMasterBar = "master_bar"

// Store implements bar.Store on Postgres.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

var _ bar.Store = (*Store)(nil)

const barColumns = `channel_id, guild_id, message_id, checkmark_message_id, content, current_prefix,
	owner_user_id, persisting, is_sleeping, has_notification, previous_state, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanBar decodes one row. Rows with non-numeric ids or an unreadable
// snapshot return a ClassMalformed error.
func scanBar(row scanner) (*bar.State, error) {
	var (
		s       bar.State
		prev    sql.NullString
		updated sql.NullTime
	)
	if err := row.Scan(&s.ChannelID, &s.GuildID, &s.MessageID, &s.CheckmarkMessageID, &s.Content, &s.CurrentPrefix,
		&s.OwnerUserID, &s.Persisting, &s.IsSleeping, &s.HasNotification, &prev, &updated); err != nil {
		return nil, err
	}
	if updated.Valid {
		s.UpdatedAt = updated.Time
	}
	if !isSnowflake(s.ChannelID) || !optionalSnowflake(s.MessageID) || !optionalSnowflake(s.CheckmarkMessageID) {
		return &s, platform.NewError(platform.ClassMalformed, "load bar", fmt.Errorf("non-numeric id in row %q", s.ChannelID))
	}
	if prev.Valid && prev.String != "" {
		var snap bar.Snapshot
		if err := json.Unmarshal([]byte(prev.String), &snap); err != nil {
			return &s, platform.NewError(platform.ClassMalformed, "load bar", fmt.Errorf("previous_state: %w", err))
		}
		s.PreviousState = &snap
	}
	return &s, nil
}

func isSnowflake(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func optionalSnowflake(id string) bool { return id == "" || isSnowflake(id) }

// GetBar returns nil, nil when the channel has no bar.
func (s *Store) GetBar(ctx context.Context, channelID string) (*bar.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+barColumns+` FROM bars WHERE channel_id=$1`, channelID)
	b, err := scanBar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) SaveBar(ctx context.Context, b *bar.State) error {
	var prev sql.NullString
	if b.PreviousState != nil {
		raw, err := json.Marshal(b.PreviousState)
		if err != nil {
			return fmt.Errorf("encode previous state: %w", err)
		}
		prev = sql.NullString{String: string(raw), Valid: true}
	}
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO bars (`+barColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (channel_id) DO UPDATE SET
			guild_id=EXCLUDED.guild_id,
			message_id=EXCLUDED.message_id,
			checkmark_message_id=EXCLUDED.checkmark_message_id,
			content=EXCLUDED.content,
			current_prefix=EXCLUDED.current_prefix,
			owner_user_id=EXCLUDED.owner_user_id,
			persisting=EXCLUDED.persisting,
			is_sleeping=EXCLUDED.is_sleeping,
			has_notification=EXCLUDED.has_notification,
			previous_state=EXCLUDED.previous_state,
			updated_at=EXCLUDED.updated_at`,
		b.ChannelID, b.GuildID, b.MessageID, b.CheckmarkMessageID, bar.Sanitize(b.Content), b.CurrentPrefix,
		b.OwnerUserID, b.Persisting, b.IsSleeping, b.HasNotification, prev, updated)
	if err != nil {
		return fmt.Errorf("save bar %s: %w", b.ChannelID, err)
	}
	return nil
}

func (s *Store) DeleteBar(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bars WHERE channel_id=$1`, channelID); err != nil {
		return fmt.Errorf("delete bar %s: %w", channelID, err)
	}
	return nil
}

// GetAllBars loads every bar. Malformed rows are deleted and skipped so one
// bad record never blocks startup.
func (s *Store) GetAllBars(ctx context.Context) (map[string]*bar.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+barColumns+` FROM bars ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*bar.State)
	var quarantine []string
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			if platform.Classify(err) == platform.ClassMalformed && b != nil {
				slog.Warn("quarantining malformed bar row", slog.String("channel", b.ChannelID), slog.Any("err", err), slog.String("component", "db"))
				quarantine = append(quarantine, b.ChannelID)
				continue
			}
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out[b.ChannelID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	for _, id := range quarantine {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM bars WHERE channel_id=$1`, id); err != nil {
			slog.Warn("quarantine delete failed", slog.String("channel", id), slog.Any("err", err), slog.String("component", "db"))
			continue
		}
		telemetry.CountQuarantined()
	}
	return out, nil
}

func (s *Store) GetWhitelist(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM bar_whitelist ORDER BY added_at, channel_id`)
	if err != nil {
		return nil, fmt.Errorf("query whitelist: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) AddToWhitelist(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bar_whitelist (channel_id) VALUES ($1) ON CONFLICT (channel_id) DO NOTHING`, channelID)
	return err
}

func (s *Store) RemoveFromWhitelist(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bar_whitelist WHERE channel_id=$1`, channelID)
	return err
}

func (s *Store) GetMasterBar(ctx context.Context) (string, error) {
	var content string
	if _, err := s.GetSetting(ctx, settingMasterBar, &content); err != nil {
		return "", err
	}
	return content, nil
}

func (s *Store) SetMasterBar(ctx context.Context, content string) error {
	return s.SetSetting(ctx, settingMasterBar, bar.Sanitize(content))
}

func (s *Store) SaveChannelLocation(ctx context.Context, loc bar.Location) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO channel_locations (channel_id, message_id, checkmark_message_id, updated_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT (channel_id) DO UPDATE SET message_id=EXCLUDED.message_id, checkmark_message_id=EXCLUDED.checkmark_message_id, updated_at=NOW()`,
		loc.ChannelID, loc.MessageID, loc.CheckmarkMessageID)
	return err
}

// GetChannelLocation returns nil, nil when nothing is recorded.
func (s *Store) GetChannelLocation(ctx context.Context, channelID string) (*bar.Location, error) {
	loc := bar.Location{ChannelID: channelID}
	err := s.db.QueryRowContext(ctx, `SELECT message_id, checkmark_message_id FROM channel_locations WHERE channel_id=$1`, channelID).
		Scan(&loc.MessageID, &loc.CheckmarkMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetSetting decodes the JSON value stored under key into out.
func (s *Store) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw.String), out); err != nil {
		return true, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetSetting stores value as JSON under key.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES ($1,$2,NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, string(raw))
	return err
}

// AppendHistory records content unless it equals the channel's latest entry.
func (s *Store) AppendHistory(ctx context.Context, channelID, content string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO bar_history (channel_id, content)
		SELECT $1::text, $2::text
		WHERE (SELECT content FROM bar_history WHERE channel_id=$1::text ORDER BY id DESC LIMIT 1) IS DISTINCT FROM $2::text`,
		channelID, content)
	return err
}

// GetHistory returns up to limit entries, newest first.
func (s *Store) GetHistory(ctx context.Context, channelID string, limit int) ([]bar.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, content, created_at FROM bar_history WHERE channel_id=$1 ORDER BY id DESC LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []bar.HistoryEntry
	for rows.Next() {
		var h bar.HistoryEntry
		if err := rows.Scan(&h.ChannelID, &h.Content, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
