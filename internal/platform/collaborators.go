// Package platform declares the external collaborators the session engine
// drives. The engine only ever talks to these interfaces; the chat transport,
// datastore and banner pipeline behind them are swappable.
package platform

import (
	"context"

	"caps-bot/internal/domain"
)

// Messenger presents session state to the guild and collects simple
// structured input. Implementations own all rendering concerns.
type Messenger interface {
	// Send posts content to the session's channel and returns a handle that
	// can be edited later.
	Send(ctx context.Context, guildID, content string) (string, error)
	// Edit replaces the content of a previously sent message.
	Edit(ctx context.Context, guildID, handle, content string) error
	// SendFile posts content with a binary attachment.
	SendFile(ctx context.Context, guildID, content string, file []byte) (string, error)
	// Warn surfaces a non-fatal notice to the guild.
	Warn(ctx context.Context, guildID, content string) error
	// Confirm asks one actor a yes/no question and reports their answer.
	// A closed window counts as a decline, not an error.
	Confirm(ctx context.Context, guildID, actorID, prompt string) (bool, error)
}

// Permissions answers authorization checks for override, force-start,
// end-session and amend calls.
type Permissions interface {
	IsAdmin(actorID, guildID string) bool
}

// BannerRenderer produces the summary banner image for a finished match.
// Rendering is CPU-bound and is always dispatched through a RenderPool.
type BannerRenderer interface {
	Render(ctx context.Context, teamNames [2]string, scores [2]int, winnerNames []string) ([]byte, error)
}

// Store is the persistence collaborator. All writes are safe to repeat:
// matches are keyed by session id and member rows upsert by (user, guild).
type Store interface {
	GuildRankRoles(ctx context.Context, guildID string) (domain.RankRoles, error)
	SetGuildRankRoles(ctx context.Context, guildID string, roles domain.RankRoles) error

	MemberStats(ctx context.Context, userID, guildID string) (domain.MemberStats, error)
	UpsertMemberStats(ctx context.Context, stats domain.MemberStats) error
	UpsertMemberRating(ctx context.Context, userID, guildID string, mu, sigma float64) error

	Match(ctx context.Context, id int64) (*domain.MatchRecord, error)
	UpsertMatch(ctx context.Context, record *domain.MatchRecord) error
	MaxMatchID(ctx context.Context) (int64, error)

	Leaderboard(ctx context.Context, guildID string, kind domain.LeaderboardKind, limit int) ([]domain.LeaderboardRow, error)

	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
}
