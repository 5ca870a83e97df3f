package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"caps-bot/internal/domain"

	"github.com/rs/zerolog"
)

type MemberRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMemberRepository(db *sql.DB, logger zerolog.Logger) *MemberRepository {
	return &MemberRepository{db: db, logger: logger}
}

// Get returns the stored career row for a member, or a zeroed default row if
// the member has never played.
func (r *MemberRepository) Get(ctx context.Context, userID, guildID string) (domain.MemberStats, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, guild_id, rank, wins, loses, ties, mu, sigma
		FROM members WHERE user_id = ? AND guild_id = ?`, userID, guildID)

	stats := domain.MemberStats{UserID: userID, GuildID: guildID}
	var mu, sigma sql.NullFloat64
	err := row.Scan(&stats.UserID, &stats.GuildID, &stats.Rank, &stats.Wins, &stats.Loses, &stats.Ties, &mu, &sigma)
	if err == sql.ErrNoRows {
		r.logger.Debug().Str("user_id", userID).Str("guild_id", guildID).Msg("member not stored, returning defaults")
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to get member: %w", err)
	}

	if mu.Valid {
		stats.Mu = &mu.Float64
	}
	if sigma.Valid {
		stats.Sigma = &sigma.Float64
	}
	return stats, nil
}

func (r *MemberRepository) Upsert(ctx context.Context, stats domain.MemberStats) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (user_id, guild_id, rank, wins, loses, ties, mu, sigma, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			rank = excluded.rank,
			wins = excluded.wins,
			loses = excluded.loses,
			ties = excluded.ties,
			updated_at = excluded.updated_at`,
		stats.UserID, stats.GuildID, stats.Rank, stats.Wins, stats.Loses, stats.Ties,
		nullable(stats.Mu), nullable(stats.Sigma), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// UpsertRating persists new rating parameters for a member, creating the row
// if the member has never been stored.
func (r *MemberRepository) UpsertRating(ctx context.Context, userID, guildID string, mu, sigma float64) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (user_id, guild_id, mu, sigma, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			mu = excluded.mu,
			sigma = excluded.sigma,
			updated_at = excluded.updated_at`,
		userID, guildID, mu, sigma, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert member rating: %w", err)
	}
	return nil
}

// Leaderboard returns the top rows for a guild ordered by the requested
// statistic. Rated members only, matching what the career surfaces show.
func (r *MemberRepository) Leaderboard(ctx context.Context, guildID string, kind domain.LeaderboardKind, limit int) ([]domain.LeaderboardRow, error) {
	var orderExpr string
	switch kind {
	case domain.LeaderboardWins:
		orderExpr = "CAST(wins AS REAL)"
	case domain.LeaderboardWinLoss:
		orderExpr = "CAST(wins AS REAL) / MAX(wins + loses + ties, 1)"
	case domain.LeaderboardRanks:
		orderExpr = "mu - 3 * sigma"
	default:
		return nil, fmt.Errorf("unknown leaderboard kind %q", kind)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT user_id, %s AS value
		FROM members
		WHERE guild_id = ? AND mu IS NOT NULL
		ORDER BY value DESC
		LIMIT ?`, orderExpr), guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var result []domain.LeaderboardRow
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
