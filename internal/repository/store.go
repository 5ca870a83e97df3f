package repository

import (
	"context"

	"caps-bot/internal/domain"
	"caps-bot/internal/platform"
)

// Store bundles the repositories behind the platform.Store collaborator
// interface consumed by the session engine.
type Store struct {
	guilds  *GuildRepository
	members *MemberRepository
	matches *MatchRepository
	audit   *AuditRepository
}

var _ platform.Store = (*Store)(nil)

func NewStore(guilds *GuildRepository, members *MemberRepository, matches *MatchRepository, audit *AuditRepository) *Store {
	return &Store{guilds: guilds, members: members, matches: matches, audit: audit}
}

func (s *Store) GuildRankRoles(ctx context.Context, guildID string) (domain.RankRoles, error) {
	return s.guilds.RankRoles(ctx, guildID)
}

func (s *Store) SetGuildRankRoles(ctx context.Context, guildID string, roles domain.RankRoles) error {
	return s.guilds.SetRankRoles(ctx, guildID, roles)
}

func (s *Store) MemberStats(ctx context.Context, userID, guildID string) (domain.MemberStats, error) {
	return s.members.Get(ctx, userID, guildID)
}

func (s *Store) UpsertMemberStats(ctx context.Context, stats domain.MemberStats) error {
	return s.members.Upsert(ctx, stats)
}

func (s *Store) UpsertMemberRating(ctx context.Context, userID, guildID string, mu, sigma float64) error {
	return s.members.UpsertRating(ctx, userID, guildID, mu, sigma)
}

func (s *Store) Match(ctx context.Context, id int64) (*domain.MatchRecord, error) {
	return s.matches.Get(ctx, id)
}

func (s *Store) UpsertMatch(ctx context.Context, record *domain.MatchRecord) error {
	return s.matches.Upsert(ctx, record)
}

func (s *Store) MaxMatchID(ctx context.Context) (int64, error) {
	return s.matches.MaxID(ctx)
}

func (s *Store) Leaderboard(ctx context.Context, guildID string, kind domain.LeaderboardKind, limit int) ([]domain.LeaderboardRow, error) {
	return s.members.Leaderboard(ctx, guildID, kind, limit)
}

func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	return s.audit.Append(ctx, entry)
}
