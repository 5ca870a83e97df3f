package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"caps-bot/internal/domain"

	"github.com/rs/zerolog"
)

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(db *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{db: db, logger: logger}
}

// Get returns a stored match or nil if no match has that id.
func (r *MatchRepository) Get(ctx context.Context, id int64) (*domain.MatchRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT match_id, guild_id, match_date, map_name, winner_data, loser_data, match_tied
		FROM matches WHERE match_id = ?`, id)

	var rec domain.MatchRecord
	var winnerData, loserData string
	err := row.Scan(&rec.ID, &rec.GuildID, &rec.Date, &rec.Map, &winnerData, &loserData, &rec.Tied)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	if err := json.Unmarshal([]byte(winnerData), &rec.Winner); err != nil {
		return nil, fmt.Errorf("failed to decode winner data: %w", err)
	}
	if err := json.Unmarshal([]byte(loserData), &rec.Loser); err != nil {
		return nil, fmt.Errorf("failed to decode loser data: %w", err)
	}
	return &rec, nil
}

// Upsert stores a match keyed by its session id. Repeating the call with the
// same id is safe, which keeps finalization recoverable after a crash.
func (r *MatchRepository) Upsert(ctx context.Context, rec *domain.MatchRecord) error {
	winnerData, err := json.Marshal(rec.Winner)
	if err != nil {
		return fmt.Errorf("failed to encode winner data: %w", err)
	}
	loserData, err := json.Marshal(rec.Loser)
	if err != nil {
		return fmt.Errorf("failed to encode loser data: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, guild_id, match_date, map_name, winner_data, loser_data, match_tied, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO UPDATE SET
			winner_data = excluded.winner_data,
			loser_data = excluded.loser_data,
			match_tied = excluded.match_tied,
			match_date = excluded.match_date,
			map_name = excluded.map_name,
			updated_at = excluded.updated_at`,
		rec.ID, rec.GuildID, rec.Date, rec.Map, string(winnerData), string(loserData), rec.Tied, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert match: %w", err)
	}

	r.logger.Debug().Int64("match_id", rec.ID).Str("guild_id", rec.GuildID).Msg("match upserted")
	return nil
}

// MaxID returns the highest stored match id, used to seed the session counter.
func (r *MatchRepository) MaxID(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(match_id), 0) FROM matches`)

	var max int64
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to get max match id: %w", err)
	}
	return max, nil
}
