package service

import (
	"context"
	"fmt"

	"caps-bot/internal/constants"
	"caps-bot/internal/domain"
	"caps-bot/internal/platform"
	"caps-bot/internal/rating"

	"github.com/rs/zerolog"
)

// MatchService serves stored-match and career queries and the admin amend
// operation.
type MatchService struct {
	store   platform.Store
	perms   platform.Permissions
	banners *platform.RenderPool
	logger  zerolog.Logger
}

func NewMatchService(store platform.Store, perms platform.Permissions, banners *platform.RenderPool, logger zerolog.Logger) *MatchService {
	return &MatchService{
		store:   store,
		perms:   perms,
		banners: banners,
		logger:  logger.With().Str("component", "match_service").Logger(),
	}
}

// Get returns a stored match belonging to the guild.
func (s *MatchService) Get(ctx context.Context, guildID string, matchID int64) (*domain.MatchRecord, error) {
	record, err := s.store.Match(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match: %w", err)
	}
	if record == nil || record.GuildID != guildID {
		return nil, ErrMatchNotFound
	}
	return record, nil
}

// Summary returns a stored match together with its rendered banner.
func (s *MatchService) Summary(ctx context.Context, guildID string, matchID int64) (*domain.MatchRecord, []byte, error) {
	record, err := s.Get(ctx, guildID, matchID)
	if err != nil {
		return nil, nil, err
	}

	banner, err := s.banners.Render(ctx,
		[2]string{record.Winner.Name, record.Loser.Name},
		[2]int{record.Winner.TotalScore(), record.Loser.TotalScore()},
		nil)
	if err != nil {
		s.logger.Warn().Err(err).Int64("match_id", matchID).Msg("failed to render summary banner")
		return record, nil, nil
	}
	return record, banner, nil
}

// Amend swaps the winner and loser of a stored match and re-applies the
// affected win/loss counters. Ratings are deliberately left untouched: the
// rating chain cannot be replayed retroactively. Admin only; tied matches
// cannot be amended.
func (s *MatchService) Amend(ctx context.Context, actorID, guildID string, matchID int64) (*domain.MatchRecord, error) {
	if !s.perms.IsAdmin(actorID, guildID) {
		return nil, ErrNotAuthorized
	}

	record, err := s.Get(ctx, guildID, matchID)
	if err != nil {
		return nil, err
	}
	if record.Tied {
		return nil, ErrMatchTied
	}

	record.Winner, record.Loser = record.Loser, record.Winner
	if err := s.store.UpsertMatch(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist amended match: %w", err)
	}

	// The former winners lose a win and gain a loss; the former losers the
	// opposite. Winner/Loser were already swapped above.
	if err := s.shiftStats(ctx, guildID, record.Winner.PlayerIDs, +1, -1); err != nil {
		return nil, err
	}
	if err := s.shiftStats(ctx, guildID, record.Loser.PlayerIDs, -1, +1); err != nil {
		return nil, err
	}

	if err := s.store.AppendAudit(ctx, domain.AuditEntry{
		GuildID:   guildID,
		SessionID: matchID,
		Event:     "match_amended",
		Detail:    fmt.Sprintf("actor=%s", actorID),
	}); err != nil {
		s.logger.Warn().Err(err).Int64("match_id", matchID).Msg("failed to append audit entry")
	}

	s.logger.Info().Int64("match_id", matchID).Str("actor_id", actorID).Msg("match amended")
	return record, nil
}

func (s *MatchService) shiftStats(ctx context.Context, guildID string, playerIDs []string, winDelta, loseDelta int) error {
	for _, userID := range playerIDs {
		stats, err := s.store.MemberStats(ctx, userID, guildID)
		if err != nil {
			return fmt.Errorf("failed to load stats for %s: %w", userID, err)
		}
		stats.Wins += winDelta
		stats.Loses += loseDelta
		if stats.Wins < 0 {
			stats.Wins = 0
		}
		if stats.Loses < 0 {
			stats.Loses = 0
		}
		if err := s.store.UpsertMemberStats(ctx, stats); err != nil {
			return fmt.Errorf("failed to update stats for %s: %w", userID, err)
		}
	}
	return nil
}

// Career is the readout of one member's stored record.
type Career struct {
	Stats    domain.MemberStats
	WinRatio float64
	// Ordinal is the conservative rating estimate; Rated reports whether
	// the member has ever been rated.
	Ordinal float64
	Rated   bool
}

func (s *MatchService) Career(ctx context.Context, userID, guildID string) (*Career, error) {
	stats, err := s.store.MemberStats(ctx, userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member stats: %w", err)
	}

	career := &Career{Stats: stats}
	if total := stats.Wins + stats.Loses + stats.Ties; total > 0 {
		career.WinRatio = float64(stats.Wins) / float64(total)
	}
	if stats.Mu != nil && stats.Sigma != nil {
		career.Rated = true
		career.Ordinal = rating.Ordinal(*stats.Mu, *stats.Sigma)
	}
	return career, nil
}

func (s *MatchService) Leaderboard(ctx context.Context, guildID string, kind domain.LeaderboardKind) ([]domain.LeaderboardRow, error) {
	rows, err := s.store.Leaderboard(ctx, guildID, kind, constants.LeaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return rows, nil
}
