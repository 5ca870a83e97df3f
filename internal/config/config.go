package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"caps-bot/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// AdminIDs are actor ids granted override/end/amend rights everywhere.
	AdminIDs []string

	TeamVoteWindow time.Duration
	RoundTimeout   time.Duration
	CacheTTL       time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:         getEnv("DB_PATH", "caps.db"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AdminIDs:       splitEnv("ADMIN_IDS"),
		TeamVoteWindow: getDurationEnv("TEAM_VOTE_WINDOW", constants.TeamVoteWindow),
		RoundTimeout:   getDurationEnv("ROUND_TIMEOUT", constants.RoundScoreTimeout),
		CacheTTL:       getDurationEnv("PLAYER_CACHE_TTL", constants.PlayerCacheTTL),
	}

	if cfg.TeamVoteWindow <= 0 || cfg.RoundTimeout <= 0 {
		return nil, fmt.Errorf("TEAM_VOTE_WINDOW and ROUND_TIMEOUT must be positive")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("admin_ids", len(cfg.AdminIDs)).
		Dur("team_vote_window", cfg.TeamVoteWindow).
		Dur("round_timeout", cfg.RoundTimeout).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var Module = fx.Provide(Load)
