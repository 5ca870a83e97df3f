package constants

import "time"

const (
	// SessionPlayerCount is the number of players in a full Caps lobby.
	SessionPlayerCount = 8
	// TeamSize is the number of players on each side.
	TeamSize = 4
	// RoundsPerMatch is the number of scored rounds in a match.
	RoundsPerMatch = 2
)

const (
	TeamVoteWindow    = 300 * time.Second
	RetryPromptWindow = 60 * time.Second
	RoundScoreTimeout = 1 * time.Hour
	PlayerCacheTTL    = 24 * time.Hour
)

const (
	// PairingsPerPage is how many candidate pairings are offered per vote.
	PairingsPerPage = 4
	// MaxPairingRegens caps how often voters can skip to a fresh pairing page.
	MaxPairingRegens = 3
	// MaxNoVoteRetries caps author-confirmed reruns of a vote with no ballots.
	MaxNoVoteRetries = 1
)

const (
	DatabaseTimeout = 5 * time.Second
	FinalizeTimeout = 30 * time.Second
	BannerTimeout   = 15 * time.Second
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// BannerWorkers bounds concurrent banner renders across all guilds.
	BannerWorkers = 2
)

const (
	DefaultRatingMu    = 25.0
	DefaultRatingSigma = DefaultRatingMu / 3
)

const (
	LeaderboardLimit = 10
)
