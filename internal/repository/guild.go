package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"caps-bot/internal/domain"

	"github.com/rs/zerolog"
)

type GuildRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGuildRepository(db *sql.DB, logger zerolog.Logger) *GuildRepository {
	return &GuildRepository{db: db, logger: logger}
}

// RankRoles returns the configured tier role ids for a guild. An unknown
// guild yields an empty (unconfigured) mapping, not an error.
func (r *GuildRepository) RankRoles(ctx context.Context, guildID string) (domain.RankRoles, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT rank0_role, rank1_role, rank2_role, rank3_role
		FROM guilds WHERE guild_id = ?`, guildID)

	var rank0, rank1, rank2, rank3 string
	if err := row.Scan(&rank0, &rank1, &rank2, &rank3); err != nil {
		if err == sql.ErrNoRows {
			return domain.RankRoles{}, nil
		}
		return nil, fmt.Errorf("failed to get guild rank roles: %w", err)
	}

	return domain.RankRoles{0: rank0, 1: rank1, 2: rank2, 3: rank3}, nil
}

func (r *GuildRepository) SetRankRoles(ctx context.Context, guildID string, roles domain.RankRoles) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guilds (guild_id, rank0_role, rank1_role, rank2_role, rank3_role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			rank0_role = excluded.rank0_role,
			rank1_role = excluded.rank1_role,
			rank2_role = excluded.rank2_role,
			rank3_role = excluded.rank3_role,
			updated_at = excluded.updated_at`,
		guildID, roles[0], roles[1], roles[2], roles[3], now, now)
	if err != nil {
		return fmt.Errorf("failed to set guild rank roles: %w", err)
	}

	r.logger.Debug().Str("guild_id", guildID).Msg("guild rank roles updated")
	return nil
}
