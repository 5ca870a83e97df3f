package service

import (
	"context"
	"fmt"

	"caps-bot/internal/domain"
	"caps-bot/internal/platform"

	"github.com/rs/zerolog"
)

// GuildService handles guild administration: rank-role configuration and
// player-cache flushes.
type GuildService struct {
	store    platform.Store
	perms    platform.Permissions
	resolver *PlayerResolver
	logger   zerolog.Logger
}

func NewGuildService(store platform.Store, perms platform.Permissions, resolver *PlayerResolver, logger zerolog.Logger) *GuildService {
	return &GuildService{
		store:    store,
		perms:    perms,
		resolver: resolver,
		logger:   logger.With().Str("component", "guild_service").Logger(),
	}
}

// SetRankRoles stores the tier 0-3 role mapping for a guild. Admin only;
// every tier must be assigned.
func (s *GuildService) SetRankRoles(ctx context.Context, actorID, guildID string, roles domain.RankRoles) error {
	if !s.perms.IsAdmin(actorID, guildID) {
		return ErrNotAuthorized
	}
	if !roles.Configured() {
		return fmt.Errorf("%w: all four tiers need a role", ErrRanksNotConfigured)
	}

	if err := s.store.SetGuildRankRoles(ctx, guildID, roles); err != nil {
		return err
	}

	// Cached players carry tiers derived from the old mapping.
	s.resolver.Cache().ClearGuild(guildID)

	s.logger.Info().Str("guild_id", guildID).Str("actor_id", actorID).Msg("rank roles updated")
	return nil
}

// FlushCache clears the guild's player cache. Admin only.
func (s *GuildService) FlushCache(actorID, guildID string) error {
	if !s.perms.IsAdmin(actorID, guildID) {
		return ErrNotAuthorized
	}
	s.resolver.Cache().ClearGuild(guildID)
	s.logger.Info().Str("guild_id", guildID).Str("actor_id", actorID).Msg("player cache flushed")
	return nil
}
