package domain

import (
	"time"
)

// Member is a chat-platform guild member as supplied by the command layer.
type Member struct {
	ID          string
	GuildID     string
	DisplayName string
	RoleIDs     []string
}

// Player is a resolved session participant. Immutable once attached to a
// session; rating fields are refreshed in the cache after finalization.
type Player struct {
	MemberID    string
	GuildID     string
	DisplayName string

	// Tier is the coarse rank bucket 0-3 derived from the member's rank role.
	Tier int
	MMR  int

	Mu    float64
	Sigma float64
}

type Team struct {
	Name    string
	Players []*Player
	Skill   int
}

func (t *Team) PlayerIDs() []string {
	ids := make([]string, len(t.Players))
	for i, p := range t.Players {
		ids[i] = p.MemberID
	}
	return ids
}

func (t *Team) PlayerNames() []string {
	names := make([]string, len(t.Players))
	for i, p := range t.Players {
		names[i] = p.DisplayName
	}
	return names
}

// Pairing is one candidate 4v4 split of the 8 session players.
type Pairing struct {
	TeamA     *Team
	TeamB     *Team
	SkillDiff int
}

type RoundScore struct {
	Team1 int
	Team2 int
}

// Match tracks scoring state for one session from team selection onwards.
type Match struct {
	Team1 *Team
	Team2 *Team

	Rounds       []RoundScore
	RoundWinners []int // 1, 2 or 0 for a drawn round

	// Set exactly once, after both rounds have reported.
	Winner      *Team
	Loser       *Team
	FinalScore1 int
	FinalScore2 int
	Tied        bool
}

// TeamResult is the per-team slice of a persisted match record.
type TeamResult struct {
	Name        string   `json:"name"`
	PlayerIDs   []string `json:"playerIds"`
	Round1Score int      `json:"round1Score"`
	Round2Score int      `json:"round2Score"`
}

func (r TeamResult) TotalScore() int {
	return r.Round1Score + r.Round2Score
}

// MatchRecord is a finished (or amended) match keyed by session id.
type MatchRecord struct {
	ID      int64
	GuildID string
	Date    time.Time
	Map     string
	Winner  TeamResult
	Loser   TeamResult
	Tied    bool
}

// MemberStats is the persisted career row for one member in one guild.
// Mu/Sigma are nil until the member has been rated at least once.
type MemberStats struct {
	UserID  string
	GuildID string
	Rank    int
	Wins    int
	Loses   int
	Ties    int
	Mu      *float64
	Sigma   *float64
}

// Rating is the rating-model view of one player. Order-preserving slices of
// these are passed to and returned from the rating capability.
type Rating struct {
	MemberID string
	Mu       float64
	Sigma    float64
}

// RankRoles maps rank tiers 0-3 to configured platform role ids for a guild.
type RankRoles map[int]string

// Configured reports whether every tier has a role assigned.
func (r RankRoles) Configured() bool {
	for tier := 0; tier <= 3; tier++ {
		if r[tier] == "" {
			return false
		}
	}
	return true
}

type AuditEntry struct {
	ID        string
	GuildID   string
	SessionID int64
	Event     string
	Detail    string
	CreatedAt time.Time
}

type LeaderboardKind string

const (
	LeaderboardWins    LeaderboardKind = "wins"
	LeaderboardWinLoss LeaderboardKind = "winloss"
	LeaderboardRanks   LeaderboardKind = "ranks"
)

type LeaderboardRow struct {
	UserID string
	Value  float64
}
